package project

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/lightningnetwork/lnd/clock"

	"github.com/ram0verflow/ironledger/chain"
	"github.com/ram0verflow/ironledger/contentstore"
	"github.com/ram0verflow/ironledger/history"
	"github.com/ram0verflow/ironledger/record"
	"github.com/ram0verflow/ironledger/txbuilder"
)

var (
	// ErrUnknownProject is returned when no reference is tracked for
	// the given project id.
	ErrUnknownProject = errors.New("unknown project")

	// ErrStaleBase is returned when an update is submitted against a
	// content identifier that is no longer the project's latest. The
	// caller must reload and resubmit; publishing from a stale base
	// would silently fork the record chain.
	ErrStaleBase = errors.New("stale base revision")
)

// Status is the confirmation state of a tracked reference.
type Status string

const (
	StatusPending   Status = "pending"
	StatusConfirmed Status = "confirmed"
)

// Reference correlates a project id with its latest content identifier and
// anchor transaction. References live in process memory only; the chain
// and the content store remain the source of truth.
type Reference struct {
	ProjectID string    `json:"projectId"`
	CID       string    `json:"ipfsHash"`
	TxID      string    `json:"txId"`
	Status    Status    `json:"status"`
	Timestamp time.Time `json:"timestamp"`
}

// Publisher is the slice of the transaction builder the manager needs.
type Publisher interface {
	// Publish embeds rec in a broadcast transaction, optionally paying
	// pay, and returns the transaction id.
	Publish(ctx context.Context, rec *record.Record,
		signer *txbuilder.SigningContext,
		pay *txbuilder.Payment) (string, error)
}

// ManagerConfig bundles the collaborators a Manager needs. All fields but
// Clock are required.
type ManagerConfig struct {
	// Store persists document revisions.
	Store contentstore.Store

	// Publisher anchors audit records on chain.
	Publisher Publisher

	// Chain serves verification and history reconstruction queries.
	Chain chain.Client

	// IssuerAddress is the authority address publishing every anchor
	// transaction, one end of each history scan.
	IssuerAddress string

	// Policy selects the digest verification mode for reconstruction.
	Policy history.VerifyPolicy

	// Clock stamps revisions and references. Nil selects the wall
	// clock.
	Clock clock.Clock
}

// Manager drives the publish/update lifecycle of project documents and
// tracks their latest references. The issuing authority is the single
// writer: concurrent updates of the same project are rejected via the
// stale-base precondition rather than silently merged.
type Manager struct {
	cfg     ManagerConfig
	history *history.Reconstructor

	mu   sync.RWMutex
	refs map[string]*Reference
}

// NewManager validates the configuration and returns a Manager.
func NewManager(cfg ManagerConfig) (*Manager, error) {
	if cfg.Store == nil {
		return nil, errors.New("project: nil content store")
	}
	if cfg.Publisher == nil {
		return nil, errors.New("project: nil publisher")
	}
	if cfg.Chain == nil {
		return nil, errors.New("project: nil chain client")
	}
	if cfg.IssuerAddress == "" {
		return nil, errors.New("project: empty issuer address")
	}
	if cfg.Clock == nil {
		cfg.Clock = clock.NewDefaultClock()
	}

	reconstructor, err := history.New(history.Config{
		Chain:  cfg.Chain,
		Policy: cfg.Policy,
	})
	if err != nil {
		return nil, err
	}

	return &Manager{
		cfg:     cfg,
		history: reconstructor,
		refs:    make(map[string]*Reference),
	}, nil
}

// PublishProject stores the initial document revision, anchors its
// creation record on chain, and starts tracking the project. The document
// is stored exactly as given.
func (m *Manager) PublishProject(ctx context.Context, doc *Document,
	signer *txbuilder.SigningContext) (*Reference, error) {

	if doc.ID == "" {
		return nil, errors.New("project: document without id")
	}

	cid, err := m.storeDocument(ctx, doc)
	if err != nil {
		return nil, err
	}

	rec, err := record.New(record.KindCreation, "", cid)
	if err != nil {
		return nil, err
	}

	txid, err := m.cfg.Publisher.Publish(ctx, rec, signer, nil)
	if err != nil {
		return nil, fmt.Errorf("anchor creation: %w", err)
	}

	ref := &Reference{
		ProjectID: doc.ID,
		CID:       cid,
		TxID:      txid,
		Status:    StatusPending,
		Timestamp: m.cfg.Clock.Now(),
	}

	m.mu.Lock()
	m.refs[doc.ID] = ref
	m.mu.Unlock()

	log.Infof("Project %s created at %s, anchored in %s", doc.ID, cid,
		txid)

	return ref.copy(), nil
}

// UpdateProject derives the next revision from the change, stores it,
// anchors the update (or payment) record, and advances the tracked
// reference. baseCid must be the project's latest known content
// identifier; anything else fails with ErrStaleBase before any side
// effect. A change carrying a payment pays the document's contractor
// address in the anchor transaction itself.
func (m *Manager) UpdateProject(ctx context.Context, projectID,
	baseCid string, change Change,
	signer *txbuilder.SigningContext) (*Reference, *Document, error) {

	m.mu.RLock()
	ref, ok := m.refs[projectID]
	var latest string
	if ok {
		latest = ref.CID
	}
	m.mu.RUnlock()

	if !ok {
		return nil, nil, ErrUnknownProject
	}
	if latest != baseCid {
		return nil, nil, fmt.Errorf("%w: have %s, latest is %s",
			ErrStaleBase, baseCid, latest)
	}

	base, err := m.loadDocument(ctx, baseCid)
	if err != nil {
		return nil, nil, err
	}

	next := ApplyUpdate(base, change, baseCid, m.cfg.Clock.Now())

	newCid, err := m.storeDocument(ctx, next)
	if err != nil {
		return nil, nil, err
	}

	kind := record.KindUpdate
	var pay *txbuilder.Payment
	if change.Payment != nil {
		kind = record.KindPayment
		pay = &txbuilder.Payment{
			Address: next.Contractor.Address,
			Amount:  change.Payment.Amount,
		}
	}

	rec, err := record.New(kind, baseCid, newCid)
	if err != nil {
		return nil, nil, err
	}

	txid, err := m.cfg.Publisher.Publish(ctx, rec, signer, pay)
	if err != nil {
		return nil, nil, fmt.Errorf("anchor revision: %w", err)
	}

	// The new revision is anchored; only now may the superseded blob
	// be released. An unpin failure costs some storage, not
	// correctness.
	if err := m.cfg.Store.Unpin(ctx, baseCid); err != nil {
		log.Warnf("Unpin of superseded revision %s failed: %v",
			baseCid, err)
	}

	now := m.cfg.Clock.Now()
	m.mu.Lock()
	ref = &Reference{
		ProjectID: projectID,
		CID:       newCid,
		TxID:      txid,
		Status:    StatusPending,
		Timestamp: now,
	}
	m.refs[projectID] = ref
	m.mu.Unlock()

	log.Infof("Project %s advanced %s -> %s (version %d), anchored "+
		"in %s", projectID, baseCid, newCid, next.Version, txid)

	return ref.copy(), next, nil
}

// VerifyProject checks that the tracked anchor transaction really binds
// the project's latest content identifier: the carried record must decode
// and match the reference. A missing carrier or a foreign record yields
// false without error.
func (m *Manager) VerifyProject(ctx context.Context,
	projectID string) (bool, error) {

	ref, err := m.reference(projectID)
	if err != nil {
		return false, err
	}

	detail, err := m.cfg.Chain.TransactionDetail(ctx, ref.TxID)
	if err != nil {
		return false, err
	}

	payload, ok := detail.DataCarrierPayload()
	if !ok {
		return false, nil
	}

	rec, err := record.Decode(payload)
	if err != nil {
		return false, nil
	}

	if rec.Kind == record.KindCreation {
		return rec.CID == ref.CID, nil
	}

	doc, err := m.loadDocument(ctx, ref.CID)
	if err != nil {
		return false, err
	}

	return rec.Matches(doc.PreviousCid(), ref.CID), nil
}

// RefreshStatus polls the chain for the tracked anchor transaction and
// updates the reference's confirmation state.
func (m *Manager) RefreshStatus(ctx context.Context,
	projectID string) (Status, error) {

	ref, err := m.reference(projectID)
	if err != nil {
		return "", err
	}

	detail, err := m.cfg.Chain.TransactionDetail(ctx, ref.TxID)
	if err != nil {
		return "", err
	}

	status := StatusPending
	if detail.Status.Confirmed {
		status = StatusConfirmed
	}

	m.mu.Lock()
	if current, ok := m.refs[projectID]; ok {
		current.Status = status
	}
	m.mu.Unlock()

	return status, nil
}

// ProjectDetails returns the tracked reference together with the latest
// document revision.
func (m *Manager) ProjectDetails(ctx context.Context,
	projectID string) (*Reference, *Document, error) {

	ref, err := m.reference(projectID)
	if err != nil {
		return nil, nil, err
	}

	doc, err := m.loadDocument(ctx, ref.CID)
	if err != nil {
		return nil, nil, err
	}

	return ref, doc, nil
}

// History reconstructs the project's on-chain audit trail from the
// tracked reference and the document's backward link.
func (m *Manager) History(ctx context.Context,
	projectID string) ([]history.LedgerTransaction, error) {

	ref, err := m.reference(projectID)
	if err != nil {
		return nil, err
	}

	doc, err := m.loadDocument(ctx, ref.CID)
	if err != nil {
		return nil, err
	}

	return m.history.GetHistory(
		ctx, ref.CID, doc.PreviousCid(), m.cfg.IssuerAddress,
		doc.Contractor.Address,
	)
}

// Reference returns a copy of the tracked reference for the project.
func (m *Manager) Reference(projectID string) (*Reference, error) {
	return m.reference(projectID)
}

func (m *Manager) reference(projectID string) (*Reference, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	ref, ok := m.refs[projectID]
	if !ok {
		return nil, ErrUnknownProject
	}

	return ref.copy(), nil
}

// storeDocument marshals, stores and pins one revision.
func (m *Manager) storeDocument(ctx context.Context,
	doc *Document) (string, error) {

	data, err := json.Marshal(doc)
	if err != nil {
		return "", err
	}

	cid, err := m.cfg.Store.Put(ctx, data)
	if err != nil {
		return "", fmt.Errorf("store revision: %w", err)
	}

	if err := m.cfg.Store.Pin(ctx, cid); err != nil {
		return "", fmt.Errorf("pin revision %s: %w", cid, err)
	}

	return cid, nil
}

// loadDocument fetches and unmarshals the revision behind cid.
func (m *Manager) loadDocument(ctx context.Context,
	cid string) (*Document, error) {

	data, err := m.cfg.Store.Get(ctx, cid)
	if err != nil {
		return nil, fmt.Errorf("load revision %s: %w", cid, err)
	}

	var doc Document
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("decode revision %s: %w", cid, err)
	}

	return &doc, nil
}

// copy returns a value copy so callers never share the tracked pointer.
func (r *Reference) copy() *Reference {
	c := *r
	return &c
}
