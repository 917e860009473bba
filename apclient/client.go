package apclient

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"strings"
	"time"

	"github.com/bradfitz/gomemcache/memcache"
	"github.com/totegamma/httpsig"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/propagation"

	"github.com/driftwood-social/driftwood/store"
	"github.com/driftwood-social/driftwood/types"
)

var (
	UserAgent = "Driftwood/1.0 (ActivityPub)"
)

var tracer = otel.Tracer("apclient")

type ApClient struct {
	mc     *memcache.Client
	store  *store.Store
	config types.ApConfig
}

func NewApClient(
	mc *memcache.Client,
	store *store.Store,
	config types.ApConfig,
) *ApClient {
	return &ApClient{
		mc,
		store,
		config,
	}
}

// FetchPerson fetches a person document from a remote ap server, signing
// the request as the given local account. Results are cached for 30 minutes.
func (c *ApClient) FetchPerson(ctx context.Context, actor string, signer *types.Account) (*types.RawApObj, error) {
	ctx, span := tracer.Start(ctx, "FetchPerson")
	defer span.End()

	// try cache
	cache, err := c.mc.Get(actor)
	if err == nil {
		person, err := types.LoadAsRawApObj(cache.Value)
		if err == nil {
			return person, nil
		}
	}

	req, err := http.NewRequest("GET", actor, nil)
	if err != nil {
		return nil, err
	}
	otel.GetTextMapPropagator().Inject(ctx, propagation.HeaderCarrier(req.Header))
	req.Header.Set("Accept", "application/activity+json")
	req.Header.Set("Date", time.Now().UTC().Format(http.TimeFormat))
	req.Header.Set("User-Agent", UserAgent)
	req.Header.Set("Host", req.URL.Host)
	client := new(http.Client)

	if signer != nil {
		priv, err := c.store.LoadKey(ctx, *signer)
		if err != nil {
			log.Println(err)
			return nil, err
		}

		prefs := []httpsig.Algorithm{httpsig.RSA_SHA256}
		digestAlgorithm := httpsig.DigestSha256
		headersToSign := []string{httpsig.RequestTarget, "date", "host"}
		reqSigner, _, err := httpsig.NewSigner(prefs, digestAlgorithm, headersToSign, httpsig.Signature, 0)
		if err != nil {
			log.Println(err)
			return nil, err
		}
		err = reqSigner.SignRequest(priv, signer.URI+"#main-key", req, nil)
		if err != nil {
			log.Println(err)
			return nil, err
		}
	}

	resp, err := client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	body, _ := io.ReadAll(resp.Body)

	person, err := types.LoadAsRawApObj(body)
	if err != nil {
		log.Println(err)
		return person, err
	}

	// cache
	personBytes, err := json.Marshal(person.GetData())
	if err == nil {
		c.mc.Set(&memcache.Item{
			Key:        actor,
			Value:      personBytes,
			Expiration: 1800, // 30 minutes
		})
	}

	return person, nil
}

// ResolveActor resolves an actor document URL from user@domain notation.
func ResolveActor(ctx context.Context, id string) (string, error) {
	ctx, span := tracer.Start(ctx, "ResolveActor")
	defer span.End()

	if id[0] == '@' {
		id = id[1:]
	}

	split := strings.Split(id, "@")
	if len(split) != 2 {
		return "", fmt.Errorf("invalid id")
	}

	domain := split[1]

	targetlink := "https://" + domain + "/.well-known/webfinger?resource=acct:" + id

	var webfinger types.WebFinger
	req, err := http.NewRequest("GET", targetlink, nil)
	if err != nil {
		return "", err
	}
	otel.GetTextMapPropagator().Inject(ctx, propagation.HeaderCarrier(req.Header))
	req.Header.Set("Accept", "application/jrd+json")
	req.Header.Set("User-Agent", UserAgent)
	client := new(http.Client)
	resp, err := client.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	body, _ := io.ReadAll(resp.Body)

	err = json.Unmarshal(body, &webfinger)
	if err != nil {
		return "", err
	}

	var aplink types.WebFingerLink
	for _, link := range webfinger.Links {
		if link.Rel == "self" {
			aplink = link
		}
	}

	if aplink.Href == "" {
		return "", fmt.Errorf("no ap link found")
	}

	return aplink.Href, nil
}

// PostToInbox posts a signed activity document to a remote inbox.
func (c *ApClient) PostToInbox(ctx context.Context, inbox string, objectBytes []byte, signer types.Account) error {
	ctx, span := tracer.Start(ctx, "PostToInbox")
	defer span.End()

	req, err := http.NewRequest("POST", inbox, bytes.NewBuffer(objectBytes))
	if err != nil {
		return err
	}
	otel.GetTextMapPropagator().Inject(ctx, propagation.HeaderCarrier(req.Header))
	req.Header.Set("Content-Type", "application/activity+json")
	req.Header.Set("User-Agent", UserAgent)
	req.Header.Set("Date", time.Now().UTC().Format(http.TimeFormat))
	req.Header.Set("Host", req.URL.Host)
	client := new(http.Client)

	priv, err := c.store.LoadKey(ctx, signer)
	if err != nil {
		log.Println(err)
		return err
	}

	prefs := []httpsig.Algorithm{httpsig.RSA_SHA256}
	digestAlgorithm := httpsig.DigestSha256
	headersToSign := []string{httpsig.RequestTarget, "date", "digest", "host"}
	reqSigner, _, err := httpsig.NewSigner(prefs, digestAlgorithm, headersToSign, httpsig.Signature, 0)
	if err != nil {
		log.Println(err)
		return err
	}
	err = reqSigner.SignRequest(priv, signer.URI+"#main-key", req, objectBytes)
	if err != nil {
		log.Println(err)
		return err
	}

	resp, err := client.Do(req)
	if err != nil {
		log.Println(err)
		return err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		log.Println(err)
	}
	log.Printf("POST %s [%d]: %s", inbox, resp.StatusCode, string(body))

	if resp.StatusCode < 200 || resp.StatusCode >= 400 {
		return fmt.Errorf("error posting to inbox: %d", resp.StatusCode)
	}

	return nil
}
