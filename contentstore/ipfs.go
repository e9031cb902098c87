package contentstore

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// defaultRequestTimeout caps a single API round trip.
const defaultRequestTimeout = 30 * time.Second

// IPFSConfig parameterizes an IPFSStore.
type IPFSConfig struct {
	// APIURL is the root of a kubo style HTTP API, e.g.
	// "http://127.0.0.1:5001".
	APIURL string

	// HTTPClient optionally overrides the HTTP client used for all
	// requests. Nil selects a client with a sane default timeout.
	HTTPClient *http.Client
}

// IPFSStore is a Store backed by the IPFS HTTP API. It is safe for
// concurrent use.
type IPFSStore struct {
	apiURL string
	client *http.Client
}

// A compile-time assertion to ensure IPFSStore implements Store.
var _ Store = (*IPFSStore)(nil)

// NewIPFSStore constructs a store against the given API endpoint.
func NewIPFSStore(cfg IPFSConfig) *IPFSStore {
	client := cfg.HTTPClient
	if client == nil {
		client = &http.Client{Timeout: defaultRequestTimeout}
	}

	return &IPFSStore{
		apiURL: strings.TrimRight(cfg.APIURL, "/"),
		client: client,
	}
}

// addResponse mirrors the /api/v0/add reply.
type addResponse struct {
	Hash string `json:"Hash"`
}

// Put stores data and returns its content identifier.
//
// NOTE: This method is part of the Store interface.
func (s *IPFSStore) Put(ctx context.Context, data []byte) (string, error) {
	var body bytes.Buffer
	writer := multipart.NewWriter(&body)

	part, err := writer.CreateFormFile("file", "document.json")
	if err != nil {
		return "", err
	}
	if _, err := part.Write(data); err != nil {
		return "", err
	}
	if err := writer.Close(); err != nil {
		return "", err
	}

	req, err := http.NewRequestWithContext(
		ctx, http.MethodPost, s.apiURL+"/api/v0/add", &body,
	)
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", writer.FormDataContentType())

	resp, err := s.client.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("ipfs add: unexpected status %d",
			resp.StatusCode)
	}

	var added addResponse
	if err := json.NewDecoder(resp.Body).Decode(&added); err != nil {
		return "", err
	}
	if added.Hash == "" {
		return "", fmt.Errorf("ipfs add: empty hash in response")
	}

	log.Debugf("Stored %d bytes as %s", len(data), added.Hash)

	return added.Hash, nil
}

// Get retrieves the content behind cid.
//
// NOTE: This method is part of the Store interface.
func (s *IPFSStore) Get(ctx context.Context, cid string) ([]byte, error) {
	resp, err := s.post(ctx, "/api/v0/cat", cid)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusOK:
		return io.ReadAll(resp.Body)

	// Kubo answers cat of unknown or unpinned content with a 500
	// carrying an error body once its local lookup gives up.
	case http.StatusNotFound, http.StatusInternalServerError:
		return nil, fmt.Errorf("cid %s: %w", cid, ErrNotFound)

	default:
		return nil, fmt.Errorf("ipfs cat: unexpected status %d",
			resp.StatusCode)
	}
}

// Pin marks cid to be retained by the store.
//
// NOTE: This method is part of the Store interface.
func (s *IPFSStore) Pin(ctx context.Context, cid string) error {
	resp, err := s.post(ctx, "/api/v0/pin/add", cid)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("ipfs pin add: unexpected status %d",
			resp.StatusCode)
	}

	return nil
}

// Unpin releases a previous Pin.
//
// NOTE: This method is part of the Store interface.
func (s *IPFSStore) Unpin(ctx context.Context, cid string) error {
	resp, err := s.post(ctx, "/api/v0/pin/rm", cid)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("ipfs pin rm: unexpected status %d",
			resp.StatusCode)
	}

	return nil
}

// pinLsResponse mirrors the /api/v0/pin/ls reply.
type pinLsResponse struct {
	Keys map[string]struct {
		Type string `json:"Type"`
	} `json:"Keys"`
}

// ListPins returns the identifiers of all pinned content. This is how the
// surrounding application enumerates known projects without any off-chain
// index.
func (s *IPFSStore) ListPins(ctx context.Context) ([]string, error) {
	resp, err := s.post(ctx, "/api/v0/pin/ls", "")
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("ipfs pin ls: unexpected status %d",
			resp.StatusCode)
	}

	var pins pinLsResponse
	if err := json.NewDecoder(resp.Body).Decode(&pins); err != nil {
		return nil, err
	}

	cids := make([]string, 0, len(pins.Keys))
	for cid := range pins.Keys {
		cids = append(cids, cid)
	}

	return cids, nil
}

// post issues a kubo RPC call, all of which are POSTs with an optional
// "arg" query parameter.
func (s *IPFSStore) post(ctx context.Context, path,
	arg string) (*http.Response, error) {

	endpoint := s.apiURL + path
	if arg != "" {
		endpoint += "?arg=" + url.QueryEscape(arg)
	}

	req, err := http.NewRequestWithContext(
		ctx, http.MethodPost, endpoint, nil,
	)
	if err != nil {
		return nil, err
	}

	return s.client.Do(req)
}
