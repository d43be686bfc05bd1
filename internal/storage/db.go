package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"nfce/internal"
	"nfce/internal/util"
)

var (
	ErrNotFound         = errors.New("not found")
	ErrMissingAccessKey = errors.New("receipt has no access key or source url")
)

type DB struct {
	conn *sql.DB
}

func Open(path string) (*DB, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}

	conn, err := sql.Open("sqlite", path+"?_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, err
	}

	if _, err := conn.Exec(`PRAGMA journal_mode = WAL;`); err != nil {
		_ = conn.Close()
		return nil, err
	}

	db := &DB{conn: conn}
	if err := db.init(); err != nil {
		_ = conn.Close()
		return nil, err
	}

	return db, nil
}

func (d *DB) Close() error {
	return d.conn.Close()
}

func (d *DB) init() error {
	schema := `
CREATE TABLE IF NOT EXISTS stores (
  id INTEGER PRIMARY KEY AUTOINCREMENT,
  name TEXT NOT NULL,
  cnpj TEXT UNIQUE,
  uf TEXT,
  city TEXT,
  createdAt TEXT NOT NULL DEFAULT CURRENT_TIMESTAMP,
  updatedAt TEXT NOT NULL DEFAULT CURRENT_TIMESTAMP
);
CREATE INDEX IF NOT EXISTS idx_stores_name ON stores(name);

CREATE TABLE IF NOT EXISTS receipts (
  id INTEGER PRIMARY KEY AUTOINCREMENT,
  accessKey TEXT NOT NULL UNIQUE,
  uf TEXT,
  storeId INTEGER,
  name TEXT NOT NULL,
  issuedAt TEXT,
  total REAL NOT NULL,
  declaredTotal REAL,
  declaredItems INTEGER,
  strategy TEXT,
  sourceUrl TEXT,
  createdAt TEXT NOT NULL DEFAULT CURRENT_TIMESTAMP,
  FOREIGN KEY(storeId) REFERENCES stores(id)
);

CREATE TABLE IF NOT EXISTS receipt_items (
  id INTEGER PRIMARY KEY AUTOINCREMENT,
  receiptId INTEGER NOT NULL,
  lineNo INTEGER NOT NULL,
  name TEXT NOT NULL,
  quantity REAL NOT NULL,
  unit TEXT,
  weight REAL,
  unitPrice REAL NOT NULL,
  lineTotal REAL,
  category TEXT,
  UNIQUE(receiptId, lineNo),
  FOREIGN KEY(receiptId) REFERENCES receipts(id) ON DELETE CASCADE
);

CREATE TABLE IF NOT EXISTS price_history (
  id INTEGER PRIMARY KEY AUTOINCREMENT,
  itemKey TEXT NOT NULL,
  itemName TEXT NOT NULL,
  storeId INTEGER,
  receiptId INTEGER NOT NULL,
  unit TEXT,
  unitPrice REAL NOT NULL,
  observedAt TEXT NOT NULL,
  FOREIGN KEY(receiptId) REFERENCES receipts(id) ON DELETE CASCADE
);
CREATE INDEX IF NOT EXISTS idx_price_history_key ON price_history(itemKey, observedAt);

CREATE TABLE IF NOT EXISTS processed_mails (
  provider TEXT NOT NULL,
  messageId TEXT NOT NULL,
  subject TEXT,
  sender TEXT,
  receivedAt TEXT,
  status TEXT NOT NULL,
  receipts INTEGER NOT NULL DEFAULT 0,
  processedAt TEXT NOT NULL DEFAULT CURRENT_TIMESTAMP,
  PRIMARY KEY(provider, messageId)
);

CREATE TABLE IF NOT EXISTS runs (
  id INTEGER PRIMARY KEY AUTOINCREMENT,
  traceId TEXT NOT NULL,
  kind TEXT NOT NULL,
  receiptId INTEGER,
  timingsJson TEXT NOT NULL,
  countsJson TEXT NOT NULL,
  createdAt TEXT NOT NULL DEFAULT CURRENT_TIMESTAMP
);

CREATE TABLE IF NOT EXISTS metadata (
  key TEXT PRIMARY KEY,
  value TEXT NOT NULL,
  updatedAt TEXT NOT NULL DEFAULT CURRENT_TIMESTAMP
);
`

	_, err := d.conn.Exec(schema)
	return err
}

type SaveResult struct {
	ReceiptID int
	Created   bool
}

// SaveReceipt persists a parsed receipt with its store, items and price
// observations. A receipt whose access key is already stored is left as is
// and reported with Created=false.
func (d *DB) SaveReceipt(ctx context.Context, res *internal.ReceiptParseResult) (SaveResult, error) {
	key := receiptKey(res)
	if key == "" {
		return SaveResult{}, ErrMissingAccessKey
	}

	saved, err := d.saveReceipt(ctx, key, res)
	if err != nil {
		// A concurrent writer may have stored the same key first.
		if existing, getErr := d.GetReceiptByAccessKey(ctx, key); getErr == nil {
			return SaveResult{ReceiptID: existing.ID}, nil
		}
		return SaveResult{}, err
	}
	return saved, nil
}

func (d *DB) saveReceipt(ctx context.Context, key string, res *internal.ReceiptParseResult) (SaveResult, error) {
	tx, err := d.conn.BeginTx(ctx, nil)
	if err != nil {
		return SaveResult{}, err
	}
	defer func() { _ = tx.Rollback() }()

	query, args, err := sq.Select("id").From("receipts").Where(sq.Eq{"accessKey": key}).ToSql()
	if err != nil {
		return SaveResult{}, err
	}
	var existingID int
	switch err := tx.QueryRowContext(ctx, query, args...).Scan(&existingID); {
	case err == nil:
		return SaveResult{ReceiptID: existingID}, nil
	case !errors.Is(err, sql.ErrNoRows):
		return SaveResult{}, err
	}

	storeID, err := upsertStore(ctx, tx, res)
	if err != nil {
		return SaveResult{}, fmt.Errorf("upsert store: %w", err)
	}

	var uf, sourceURL string
	if res.Meta != nil {
		uf, sourceURL = res.Meta.UF, res.Meta.SourceURL
	}
	issuedAt := formatTime(res.IssuedAt)

	query, args, err = sq.Insert("receipts").
		Columns("accessKey", "uf", "storeId", "name", "issuedAt", "total", "declaredTotal", "declaredItems", "strategy", "sourceUrl").
		Values(key, uf, storeID, res.SuggestedName, issuedAt, util.PurchaseTotal(res.Items),
			res.DeclaredGrandTotal, res.DeclaredItemCount, res.Strategy, sourceURL).
		ToSql()
	if err != nil {
		return SaveResult{}, err
	}
	result, err := tx.ExecContext(ctx, query, args...)
	if err != nil {
		return SaveResult{}, fmt.Errorf("insert receipt: %w", err)
	}
	receiptID, err := result.LastInsertId()
	if err != nil {
		return SaveResult{}, err
	}

	observedAt := issuedAt
	if observedAt == nil {
		now := time.Now().UTC().Format(time.RFC3339)
		observedAt = &now
	}

	for i, item := range res.Items {
		var unit *string
		if item.Unit != nil {
			unit = util.StringPtr(string(*item.Unit))
		}
		var category *string
		if item.Category != nil {
			category = util.StringPtr(string(*item.Category))
		}

		query, args, err := sq.Insert("receipt_items").
			Columns("receiptId", "lineNo", "name", "quantity", "unit", "weight", "unitPrice", "lineTotal", "category").
			Values(receiptID, i+1, item.Name, item.Quantity, unit, item.Weight, item.UnitPrice, item.LineTotal, category).
			ToSql()
		if err != nil {
			return SaveResult{}, err
		}
		if _, err := tx.ExecContext(ctx, query, args...); err != nil {
			return SaveResult{}, fmt.Errorf("insert item %d: %w", i+1, err)
		}

		query, args, err = sq.Insert("price_history").
			Columns("itemKey", "itemName", "storeId", "receiptId", "unit", "unitPrice", "observedAt").
			Values(util.Normalize(item.Name), item.Name, storeID, receiptID, unit, util.DisplayUnitPrice(item), *observedAt).
			ToSql()
		if err != nil {
			return SaveResult{}, err
		}
		if _, err := tx.ExecContext(ctx, query, args...); err != nil {
			return SaveResult{}, fmt.Errorf("insert price: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return SaveResult{}, err
	}
	return SaveResult{ReceiptID: int(receiptID), Created: true}, nil
}

func receiptKey(res *internal.ReceiptParseResult) string {
	if res == nil || res.Meta == nil {
		return ""
	}
	if res.Meta.AccessKey != "" {
		return res.Meta.AccessKey
	}
	if res.Meta.SourceURL != "" {
		return "url:" + res.Meta.SourceURL
	}
	return ""
}

// upsertStore matches by CNPJ when known, otherwise by name among stores
// without a CNPJ.
func upsertStore(ctx context.Context, tx *sql.Tx, res *internal.ReceiptParseResult) (*int64, error) {
	name := ""
	if res.MerchantName != nil {
		name = *res.MerchantName
	}
	var cnpj, city *string
	uf := ""
	if res.Meta != nil {
		if name == "" {
			name = res.Meta.StoreName
		}
		cnpj, city, uf = res.Meta.CNPJ, res.Meta.CityName, res.Meta.UF
	}
	if name == "" && cnpj == nil {
		return nil, nil
	}
	if name == "" {
		name = *cnpj
	}

	sel := sq.Select("id").From("stores").Limit(1)
	if cnpj != nil {
		sel = sel.Where(sq.Eq{"cnpj": *cnpj})
	} else {
		sel = sel.Where(sq.Eq{"name": name, "cnpj": nil})
	}
	query, args, err := sel.ToSql()
	if err != nil {
		return nil, err
	}

	var id int64
	err = tx.QueryRowContext(ctx, query, args...).Scan(&id)
	switch {
	case err == nil:
		query, args, err = sq.Update("stores").
			Set("name", name).
			Set("uf", uf).
			Set("city", sq.Expr("COALESCE(?, city)", city)).
			Set("updatedAt", sq.Expr("CURRENT_TIMESTAMP")).
			Where(sq.Eq{"id": id}).
			ToSql()
		if err != nil {
			return nil, err
		}
		if _, err := tx.ExecContext(ctx, query, args...); err != nil {
			return nil, err
		}
		return &id, nil
	case errors.Is(err, sql.ErrNoRows):
	default:
		return nil, err
	}

	query, args, err = sq.Insert("stores").
		Columns("name", "cnpj", "uf", "city").
		Values(name, cnpj, uf, city).
		ToSql()
	if err != nil {
		return nil, err
	}
	result, err := tx.ExecContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	id, err = result.LastInsertId()
	if err != nil {
		return nil, err
	}
	return &id, nil
}

func receiptSelect() sq.SelectBuilder {
	return sq.Select(
		"r.id", "r.accessKey", "COALESCE(r.uf, '')", "r.storeId", "s.name", "r.issuedAt", "r.total",
		"COALESCE(r.sourceUrl, '')", "r.createdAt",
		"(SELECT COUNT(*) FROM receipt_items i WHERE i.receiptId = r.id)",
	).
		From("receipts r").
		LeftJoin("stores s ON s.id = r.storeId")
}

func scanReceipt(row interface{ Scan(...any) error }) (internal.StoredReceipt, error) {
	var r internal.StoredReceipt
	err := row.Scan(&r.ID, &r.AccessKey, &r.UF, &r.StoreID, &r.StoreName, &r.IssuedAt, &r.Total, &r.SourceURL, &r.CreatedAt, &r.ItemsCount)
	return r, err
}

func (d *DB) getReceipt(ctx context.Context, where sq.Eq) (internal.StoredReceipt, error) {
	query, args, err := receiptSelect().Where(where).ToSql()
	if err != nil {
		return internal.StoredReceipt{}, err
	}
	r, err := scanReceipt(d.conn.QueryRowContext(ctx, query, args...))
	if errors.Is(err, sql.ErrNoRows) {
		return internal.StoredReceipt{}, ErrNotFound
	}
	return r, err
}

func (d *DB) GetReceipt(ctx context.Context, id int) (internal.StoredReceipt, error) {
	return d.getReceipt(ctx, sq.Eq{"r.id": id})
}

func (d *DB) GetReceiptByAccessKey(ctx context.Context, accessKey string) (internal.StoredReceipt, error) {
	return d.getReceipt(ctx, sq.Eq{"r.accessKey": accessKey})
}

func (d *DB) ListReceipts(ctx context.Context, limit int) ([]internal.StoredReceipt, error) {
	sel := receiptSelect().OrderBy("r.id DESC")
	if limit > 0 {
		sel = sel.Limit(uint64(limit))
	}
	query, args, err := sel.ToSql()
	if err != nil {
		return nil, err
	}
	rows, err := d.conn.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []internal.StoredReceipt
	for rows.Next() {
		r, err := scanReceipt(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

func (d *DB) ReceiptItems(ctx context.Context, receiptID int) ([]internal.ReceiptItem, error) {
	query, args, err := sq.Select("name", "quantity", "unit", "weight", "unitPrice", "lineTotal", "category").
		From("receipt_items").
		Where(sq.Eq{"receiptId": receiptID}).
		OrderBy("lineNo ASC").
		ToSql()
	if err != nil {
		return nil, err
	}
	rows, err := d.conn.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []internal.ReceiptItem
	for rows.Next() {
		var item internal.ReceiptItem
		var unit, category *string
		if err := rows.Scan(&item.Name, &item.Quantity, &unit, &item.Weight, &item.UnitPrice, &item.LineTotal, &category); err != nil {
			return nil, err
		}
		if unit != nil {
			u := internal.Unit(*unit)
			item.Unit = &u
		}
		if category != nil {
			c := internal.Category(*category)
			item.Category = &c
		}
		out = append(out, item)
	}
	return out, rows.Err()
}

type PricePoint struct {
	ItemName   string
	StoreName  *string
	Unit       *string
	UnitPrice  float64
	ObservedAt string
	ReceiptID  int
}

// PriceHistory lists observed unit prices for a product name, newest first.
func (d *DB) PriceHistory(ctx context.Context, name string, limit int) ([]PricePoint, error) {
	sel := sq.Select("p.itemName", "s.name", "p.unit", "p.unitPrice", "p.observedAt", "p.receiptId").
		From("price_history p").
		LeftJoin("stores s ON s.id = p.storeId").
		Where(sq.Eq{"p.itemKey": util.Normalize(name)}).
		OrderBy("p.observedAt DESC", "p.id DESC")
	if limit > 0 {
		sel = sel.Limit(uint64(limit))
	}
	query, args, err := sel.ToSql()
	if err != nil {
		return nil, err
	}
	rows, err := d.conn.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []PricePoint
	for rows.Next() {
		var p PricePoint
		if err := rows.Scan(&p.ItemName, &p.StoreName, &p.Unit, &p.UnitPrice, &p.ObservedAt, &p.ReceiptID); err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

func (d *DB) IsMailProcessed(ctx context.Context, provider, messageID string) (bool, error) {
	query, args, err := sq.Select("1").From("processed_mails").
		Where(sq.Eq{"provider": provider, "messageId": messageID}).
		ToSql()
	if err != nil {
		return false, err
	}
	var one int
	err = d.conn.QueryRowContext(ctx, query, args...).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	return err == nil, err
}

func (d *DB) MarkMailProcessed(ctx context.Context, msg internal.FetchedMailMessage, status string, receipts int) error {
	query, args, err := sq.Insert("processed_mails").
		Columns("provider", "messageId", "subject", "sender", "receivedAt", "status", "receipts").
		Values(msg.Provider, msg.MessageID, msg.Subject, msg.From, msg.ReceivedAt, status, receipts).
		Suffix(`ON CONFLICT(provider, messageId) DO UPDATE SET
  status = excluded.status,
  receipts = excluded.receipts,
  processedAt = CURRENT_TIMESTAMP`).
		ToSql()
	if err != nil {
		return err
	}
	_, err = d.conn.ExecContext(ctx, query, args...)
	return err
}

// InsertRun records one pipeline run and returns its trace id.
func (d *DB) InsertRun(ctx context.Context, kind string, receiptID *int, timings map[string]float64, counts map[string]int) (string, error) {
	timingsJSON, _ := json.Marshal(timings)
	countsJSON, _ := json.Marshal(counts)
	traceID := uuid.NewString()

	query, args, err := sq.Insert("runs").
		Columns("traceId", "kind", "receiptId", "timingsJson", "countsJson").
		Values(traceID, kind, receiptID, string(timingsJSON), string(countsJSON)).
		ToSql()
	if err != nil {
		return "", err
	}
	if _, err := d.conn.ExecContext(ctx, query, args...); err != nil {
		return "", err
	}
	return traceID, nil
}

func (d *DB) SetMetadata(ctx context.Context, key, value string) error {
	_, err := d.conn.ExecContext(ctx, `
INSERT INTO metadata (key, value) VALUES (?, ?)
ON CONFLICT(key) DO UPDATE SET value = excluded.value, updatedAt = CURRENT_TIMESTAMP
`, key, value)
	return err
}

func (d *DB) GetMetadata(ctx context.Context, key string) (string, error) {
	var value string
	err := d.conn.QueryRowContext(ctx, `SELECT value FROM metadata WHERE key = ?`, key).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return "", ErrNotFound
	}
	return value, err
}

// ExportRows returns one row per stored item. An empty id list exports
// every receipt.
func (d *DB) ExportRows(ctx context.Context, receiptIDs []int) ([]internal.ReceiptExportRow, error) {
	sel := sq.Select(
		"r.id", "r.accessKey", "r.issuedAt", "s.name", "r.name", "r.total",
		"i.lineNo", "i.name", "i.quantity", "i.unit", "i.weight", "i.unitPrice", "i.lineTotal", "i.category",
	).
		From("receipt_items i").
		Join("receipts r ON r.id = i.receiptId").
		LeftJoin("stores s ON s.id = r.storeId").
		OrderBy("r.id ASC", "i.lineNo ASC")
	if len(receiptIDs) > 0 {
		sel = sel.Where(sq.Eq{"r.id": receiptIDs})
	}
	query, args, err := sel.ToSql()
	if err != nil {
		return nil, err
	}
	rows, err := d.conn.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []internal.ReceiptExportRow
	for rows.Next() {
		var row internal.ReceiptExportRow
		if err := rows.Scan(
			&row.ReceiptID, &row.AccessKey, &row.IssuedAt, &row.StoreName, &row.ReceiptName, &row.Total,
			&row.LineNo, &row.ItemName, &row.Quantity, &row.Unit, &row.Weight, &row.UnitPrice, &row.LineTotal, &row.Category,
		); err != nil {
			return nil, err
		}
		out = append(out, row)
	}
	return out, rows.Err()
}

func formatTime(t *time.Time) *string {
	if t == nil {
		return nil
	}
	s := t.Format(time.RFC3339)
	return &s
}
