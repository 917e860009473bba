package worker

import (
	"github.com/driftwood-social/driftwood/apclient"
	"github.com/driftwood-social/driftwood/deliver"
	"github.com/driftwood-social/driftwood/store"
	"github.com/driftwood-social/driftwood/types"
)

type Worker struct {
	queue    *deliver.Queue
	store    *store.Store
	apclient *apclient.ApClient
	config   types.ApConfig
}

func NewWorker(queue *deliver.Queue, store *store.Store, apclient *apclient.ApClient, config types.ApConfig) *Worker {
	return &Worker{
		queue,
		store,
		apclient,
		config,
	}
}

func (w *Worker) Run() {
	go w.StartDeliveryWorker()
}
