package grn

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/tillpoint/backoffice/internal/ledger"
)

type fakeProduct struct {
	active bool
	cost   decimal.Decimal
}

type memoryState struct {
	headers      map[int64]Header
	lines        map[int64][]Line
	suppliers    map[int64]bool
	products     map[int64]fakeProduct
	movements    []ledger.Movement
	stock        map[int64]decimal.Decimal
	nextHeaderID int64
	nextLineID   int64
	nextMoveID   int64
}

// memoryRepo mimics the transactional contract of the real repository: the
// callback runs against a copy of the state, and the copy only replaces the
// original when the callback succeeds. A mid-callback failure therefore rolls
// everything back, which the posting tests rely on. The mutex plays the role
// of the header row lock: a transaction that waited for it starts from the
// winner's committed state, matching read-committed FOR UPDATE behavior.
type memoryRepo struct {
	mu              sync.Mutex
	state           *memoryState
	insertConflicts int
}

func newMemoryRepo() *memoryRepo {
	return &memoryRepo{state: &memoryState{
		headers:   make(map[int64]Header),
		lines:     make(map[int64][]Line),
		suppliers: make(map[int64]bool),
		products:  make(map[int64]fakeProduct),
		stock:     make(map[int64]decimal.Decimal),
	}}
}

func (s *memoryState) clone() *memoryState {
	c := &memoryState{
		headers:      make(map[int64]Header, len(s.headers)),
		lines:        make(map[int64][]Line, len(s.lines)),
		suppliers:    make(map[int64]bool, len(s.suppliers)),
		products:     make(map[int64]fakeProduct, len(s.products)),
		movements:    append([]ledger.Movement(nil), s.movements...),
		stock:        make(map[int64]decimal.Decimal, len(s.stock)),
		nextHeaderID: s.nextHeaderID,
		nextLineID:   s.nextLineID,
		nextMoveID:   s.nextMoveID,
	}
	for id, h := range s.headers {
		c.headers[id] = h
	}
	for id, lines := range s.lines {
		c.lines[id] = append([]Line(nil), lines...)
	}
	for id, active := range s.suppliers {
		c.suppliers[id] = active
	}
	for id, p := range s.products {
		c.products[id] = p
	}
	for id, qty := range s.stock {
		c.stock[id] = qty
	}
	return c
}

func (r *memoryRepo) addSupplier(id int64, active bool) {
	r.state.suppliers[id] = active
}

func (r *memoryRepo) addProduct(id int64, active bool, cost decimal.Decimal) {
	r.state.products[id] = fakeProduct{active: active, cost: cost}
}

func (r *memoryRepo) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	working := r.state.clone()
	if err := fn(ctx, &memoryTx{state: working, repo: r}); err != nil {
		return err
	}
	r.state = working
	return nil
}

func (r *memoryRepo) GetHeader(ctx context.Context, id int64) (Header, error) {
	h, ok := r.state.headers[id]
	if !ok {
		return Header{}, ErrNotFound
	}
	return h, nil
}

func (r *memoryRepo) Get(ctx context.Context, id int64) (Header, []Line, error) {
	h, err := r.GetHeader(ctx, id)
	if err != nil {
		return Header{}, nil, err
	}
	return h, append([]Line(nil), r.state.lines[id]...), nil
}

func (r *memoryRepo) List(ctx context.Context, limit, offset int, filters ListFilters) ([]Header, int, error) {
	var headers []Header
	for _, h := range r.state.headers {
		if filters.Status != "" && h.Status != filters.Status {
			continue
		}
		headers = append(headers, h)
	}
	return headers, len(headers), nil
}

type memoryTx struct {
	state *memoryState
	repo  *memoryRepo
}

func (tx *memoryTx) AcquireNumberingLock(ctx context.Context) error { return nil }

func (tx *memoryTx) LatestDocumentNo(ctx context.Context) (string, error) {
	var latestID int64
	latest := ""
	for id, h := range tx.state.headers {
		if id > latestID {
			latestID = id
			latest = h.DocumentNo
		}
	}
	return latest, nil
}

func (tx *memoryTx) InsertHeader(ctx context.Context, h Header) (Header, error) {
	if tx.repo != nil && tx.repo.insertConflicts > 0 {
		tx.repo.insertConflicts--
		return Header{}, errDocumentNoConflict
	}
	tx.state.nextHeaderID++
	h.ID = tx.state.nextHeaderID
	h.CreatedAt = time.Now()
	tx.state.headers[h.ID] = h
	return h, nil
}

func (tx *memoryTx) GetHeaderForUpdate(ctx context.Context, id int64) (Header, error) {
	h, ok := tx.state.headers[id]
	if !ok {
		return Header{}, ErrNotFound
	}
	return h, nil
}

func (tx *memoryTx) GetLines(ctx context.Context, grnID int64) ([]Line, error) {
	return append([]Line(nil), tx.state.lines[grnID]...), nil
}

func (tx *memoryTx) UpsertLine(ctx context.Context, line Line) (int64, error) {
	if line.ID != 0 {
		for i, existing := range tx.state.lines[line.GRNID] {
			if existing.ID == line.ID {
				tx.state.lines[line.GRNID][i] = line
				return line.ID, nil
			}
		}
		return 0, ErrNotFound
	}
	tx.state.nextLineID++
	line.ID = tx.state.nextLineID
	tx.state.lines[line.GRNID] = append(tx.state.lines[line.GRNID], line)
	return line.ID, nil
}

func (tx *memoryTx) DeleteLine(ctx context.Context, grnID, lineID int64) error {
	lines := tx.state.lines[grnID]
	for i, line := range lines {
		if line.ID == lineID {
			tx.state.lines[grnID] = append(lines[:i], lines[i+1:]...)
			return nil
		}
	}
	return ErrNotFound
}

func (tx *memoryTx) SetHeaderPosted(ctx context.Context, id int64, subtotal, tax, other, total decimal.Decimal) error {
	h := tx.state.headers[id]
	h.Status = StatusPosted
	h.Subtotal = subtotal
	h.Tax = tax
	h.Other = other
	h.Total = total
	tx.state.headers[id] = h
	return nil
}

func (tx *memoryTx) SetHeaderVoid(ctx context.Context, id int64, note string) error {
	h := tx.state.headers[id]
	h.Status = StatusVoid
	h.Note = note
	tx.state.headers[id] = h
	return nil
}

func (tx *memoryTx) SetHeaderCharges(ctx context.Context, id int64, tax, other decimal.Decimal) error {
	h := tx.state.headers[id]
	h.Tax = tax
	h.Other = other
	tx.state.headers[id] = h
	return nil
}

func (tx *memoryTx) SupplierActive(ctx context.Context, supplierID int64) (bool, error) {
	return tx.state.suppliers[supplierID], nil
}

func (tx *memoryTx) ProductActive(ctx context.Context, productID int64) (bool, error) {
	p, ok := tx.state.products[productID]
	return ok && p.active, nil
}

func (tx *memoryTx) ProductCostForUpdate(ctx context.Context, productID int64) (decimal.Decimal, error) {
	p, ok := tx.state.products[productID]
	if !ok {
		return decimal.Zero, ErrReferential
	}
	return p.cost, nil
}

func (tx *memoryTx) UpdateProductCost(ctx context.Context, productID int64, cost decimal.Decimal) error {
	p := tx.state.products[productID]
	p.cost = cost
	tx.state.products[productID] = p
	return nil
}

func (tx *memoryTx) Ledger() ledger.TxRepository {
	return &memoryLedgerTx{state: tx.state}
}

type memoryLedgerTx struct {
	state *memoryState
}

func (tx *memoryLedgerTx) LockProduct(ctx context.Context, productID int64) error {
	if _, ok := tx.state.products[productID]; !ok {
		return ledger.ErrUnknownProduct
	}
	return nil
}

func (tx *memoryLedgerTx) GetStockForUpdate(ctx context.Context, productID int64) (decimal.Decimal, error) {
	return tx.state.stock[productID], nil
}

func (tx *memoryLedgerTx) InsertMovement(ctx context.Context, m ledger.Movement) (int64, error) {
	tx.state.nextMoveID++
	m.ID = tx.state.nextMoveID
	tx.state.movements = append(tx.state.movements, m)
	return m.ID, nil
}

func (tx *memoryLedgerTx) UpsertStockLevel(ctx context.Context, productID int64, qty decimal.Decimal) error {
	tx.state.stock[productID] = qty
	return nil
}

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func newTestService(repo *memoryRepo) *Service {
	svc := NewService(repo, nil, nil)
	svc.now = func() time.Time { return time.Date(2026, 3, 14, 9, 0, 0, 0, time.UTC) }
	return svc
}

func TestCreateIssuesSequentialNumbers(t *testing.T) {
	repo := newMemoryRepo()
	repo.addSupplier(7, true)
	svc := newTestService(repo)
	ctx := context.Background()

	var numbers []string
	for i := 0; i < 3; i++ {
		h, err := svc.Create(ctx, CreateInput{SupplierID: 7, ReceivedBy: "asha"})
		require.NoError(t, err)
		require.Equal(t, StatusOpen, h.Status)
		numbers = append(numbers, h.DocumentNo)
	}
	require.Equal(t, []string{"GRN-2026-000001", "GRN-2026-000002", "GRN-2026-000003"}, numbers)
}

func TestCreateReturnsCreatedAt(t *testing.T) {
	repo := newMemoryRepo()
	repo.addSupplier(7, true)
	svc := newTestService(repo)

	h, err := svc.Create(context.Background(), CreateInput{SupplierID: 7})
	require.NoError(t, err)
	require.False(t, h.CreatedAt.IsZero(), "created_at must come back from the insert")
}

func TestConcurrentCreatesIssueDistinctNumbers(t *testing.T) {
	repo := newMemoryRepo()
	repo.addSupplier(7, true)
	svc := newTestService(repo)
	ctx := context.Background()

	const workers = 8
	type outcome struct {
		number string
		err    error
	}
	results := make(chan outcome, workers)
	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			h, err := svc.Create(ctx, CreateInput{SupplierID: 7})
			results <- outcome{number: h.DocumentNo, err: err}
		}()
	}
	wg.Wait()
	close(results)

	seen := make(map[string]bool, workers)
	for res := range results {
		require.NoError(t, res.err)
		require.False(t, seen[res.number], "document number %s issued twice", res.number)
		seen[res.number] = true
	}
	require.Len(t, seen, workers)
}

func TestCreateRetriesOnNumberConflict(t *testing.T) {
	repo := newMemoryRepo()
	repo.addSupplier(7, true)
	repo.insertConflicts = 1
	svc := newTestService(repo)

	h, err := svc.Create(context.Background(), CreateInput{SupplierID: 7})
	require.NoError(t, err)
	require.Equal(t, "GRN-2026-000001", h.DocumentNo)
}

func TestCreateGivesUpAfterRepeatedConflicts(t *testing.T) {
	repo := newMemoryRepo()
	repo.addSupplier(7, true)
	repo.insertConflicts = createAttempts
	svc := newTestService(repo)

	_, err := svc.Create(context.Background(), CreateInput{SupplierID: 7})
	require.ErrorIs(t, err, errDocumentNoConflict)
	// Conflicts are an internal collision, never a client-input problem.
	require.NotErrorIs(t, err, ErrValidation)
}

func TestCreateRejectsInactiveSupplier(t *testing.T) {
	repo := newMemoryRepo()
	repo.addSupplier(7, false)
	svc := newTestService(repo)

	_, err := svc.Create(context.Background(), CreateInput{SupplierID: 7})
	require.ErrorIs(t, err, ErrReferential)

	_, err = svc.Create(context.Background(), CreateInput{SupplierID: 99})
	require.ErrorIs(t, err, ErrReferential)
}

func TestUpsertLineComputesTotal(t *testing.T) {
	repo := newMemoryRepo()
	repo.addSupplier(7, true)
	repo.addProduct(1, true, dec("40"))
	svc := newTestService(repo)
	ctx := context.Background()

	h, err := svc.Create(ctx, CreateInput{SupplierID: 7})
	require.NoError(t, err)

	line, err := svc.UpsertLine(ctx, h.ID, LineInput{ProductID: 1, Qty: dec("2.5"), UnitCost: dec("40")})
	require.NoError(t, err)
	require.True(t, line.LineTotal.Equal(dec("100")))

	// Rewriting the same line replaces it rather than adding a second one.
	_, err = svc.UpsertLine(ctx, h.ID, LineInput{ID: line.ID, ProductID: 1, Qty: dec("3"), UnitCost: dec("40")})
	require.NoError(t, err)
	_, lines, err := svc.Get(ctx, h.ID)
	require.NoError(t, err)
	require.Len(t, lines, 1)
	require.True(t, lines[0].LineTotal.Equal(dec("120")))
}

func TestUpsertLineValidation(t *testing.T) {
	repo := newMemoryRepo()
	repo.addSupplier(7, true)
	repo.addProduct(1, true, decimal.Zero)
	repo.addProduct(2, false, decimal.Zero)
	svc := newTestService(repo)
	ctx := context.Background()

	h, err := svc.Create(ctx, CreateInput{SupplierID: 7})
	require.NoError(t, err)

	_, err = svc.UpsertLine(ctx, h.ID, LineInput{ProductID: 1, Qty: decimal.Zero, UnitCost: dec("1")})
	require.ErrorIs(t, err, ErrValidation)

	_, err = svc.UpsertLine(ctx, h.ID, LineInput{ProductID: 1, Qty: dec("-1"), UnitCost: dec("1")})
	require.ErrorIs(t, err, ErrValidation)

	_, err = svc.UpsertLine(ctx, h.ID, LineInput{ProductID: 1, Qty: dec("1"), UnitCost: dec("-1")})
	require.ErrorIs(t, err, ErrValidation)

	_, err = svc.UpsertLine(ctx, h.ID, LineInput{ProductID: 2, Qty: dec("1"), UnitCost: dec("1")})
	require.ErrorIs(t, err, ErrReferential)
}

func TestVoidRequiresOpenAndReason(t *testing.T) {
	repo := newMemoryRepo()
	repo.addSupplier(7, true)
	svc := newTestService(repo)
	ctx := context.Background()

	h, err := svc.Create(ctx, CreateInput{SupplierID: 7, Note: "morning delivery"})
	require.NoError(t, err)

	require.ErrorIs(t, svc.Void(ctx, h.ID, "  "), ErrValidation)

	require.NoError(t, svc.Void(ctx, h.ID, "duplicate entry"))
	got, err := repo.GetHeader(ctx, h.ID)
	require.NoError(t, err)
	require.Equal(t, StatusVoid, got.Status)
	require.Equal(t, "morning delivery\nVOID: duplicate entry", got.Note)

	// Terminal states stay terminal.
	require.ErrorIs(t, svc.Void(ctx, h.ID, "again"), ErrInvalidState)
}

func TestMutationsRejectedAfterVoid(t *testing.T) {
	repo := newMemoryRepo()
	repo.addSupplier(7, true)
	repo.addProduct(1, true, decimal.Zero)
	svc := newTestService(repo)
	ctx := context.Background()

	h, err := svc.Create(ctx, CreateInput{SupplierID: 7})
	require.NoError(t, err)
	require.NoError(t, svc.Void(ctx, h.ID, "mistake"))

	_, err = svc.UpsertLine(ctx, h.ID, LineInput{ProductID: 1, Qty: dec("1"), UnitCost: dec("1")})
	require.ErrorIs(t, err, ErrInvalidState)
	require.ErrorIs(t, svc.DeleteLine(ctx, h.ID, 1), ErrInvalidState)
	require.ErrorIs(t, svc.SetCharges(ctx, h.ID, dec("1"), decimal.Zero), ErrInvalidState)
}

func TestSetChargesValidation(t *testing.T) {
	repo := newMemoryRepo()
	repo.addSupplier(7, true)
	svc := newTestService(repo)
	ctx := context.Background()

	h, err := svc.Create(ctx, CreateInput{SupplierID: 7})
	require.NoError(t, err)

	require.ErrorIs(t, svc.SetCharges(ctx, h.ID, dec("-1"), decimal.Zero), ErrValidation)
	require.NoError(t, svc.SetCharges(ctx, h.ID, dec("18"), dec("5")))

	got, err := repo.GetHeader(ctx, h.ID)
	require.NoError(t, err)
	require.True(t, got.Tax.Equal(dec("18")))
	require.True(t, got.Other.Equal(dec("5")))
}
