package td

import (
	"bytes"
	"compress/gzip"
	"context"
	"encoding/json"
	"fmt"

	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
	"github.com/valyala/fasthttp"

	"petit-cli/pkg/transfer"
)

// DestinationService writes whole tables into a destination database on
// the platform. Implements transfer.Destination.
//
// Existing-table state is recorded once in Snapshot so existence
// decisions stay stable against this run's own writes.
type DestinationService struct {
	client   *Client
	database string
	existing map[string]struct{}
}

func NewDestinationService(client *Client, database string) *DestinationService {
	return &DestinationService{client: client, database: database}
}

// Snapshot records the destination's current tables without touching
// anything. A database that does not exist yet simply has no tables.
func (d *DestinationService) Snapshot(ctx context.Context) error {
	status, body, err := d.client.Get("/v3/table/list/" + escape(d.database))
	if err != nil {
		return errors.Wrapf(err, "failed to list tables of %q", d.database)
	}
	switch status {
	case fasthttp.StatusOK:
	case fasthttp.StatusNotFound:
		d.existing = make(map[string]struct{})
		return nil
	default:
		return &APIError{Status: status, Path: "/v3/table/list", Body: string(body)}
	}

	var resp struct {
		Tables []struct {
			Name string `json:"name"`
		} `json:"tables"`
	}
	if err := json.Unmarshal(body, &resp); err != nil {
		return errors.Wrapf(err, "failed to decode tables of %q", d.database)
	}
	d.existing = make(map[string]struct{}, len(resp.Tables))
	for _, t := range resp.Tables {
		d.existing[t.Name] = struct{}{}
	}
	return nil
}

func (d *DestinationService) Prepare(ctx context.Context) error {
	status, body, err := d.client.Post("/v3/database/create/"+escape(d.database), nil, "")
	if err != nil {
		return errors.Wrapf(err, "failed to create database %q", d.database)
	}
	switch status {
	case fasthttp.StatusOK:
		log.Info().Str("database", d.database).Msg("Created destination database")
	case fasthttp.StatusConflict:
		// Already there.
	default:
		return &APIError{Status: status, Path: "/v3/database/create", Body: string(body)}
	}
	return nil
}

func (d *DestinationService) Exists(ctx context.Context, unit transfer.UnitOfWork) (bool, error) {
	if d.existing == nil {
		return false, errors.New("destination not snapshotted")
	}
	_, ok := d.existing[unit.DestTable]
	return ok, nil
}

func (d *DestinationService) OpenWriter(ctx context.Context, unit transfer.UnitOfWork, columns []string, overwrite bool) (transfer.ChunkWriter, error) {
	if overwrite {
		status, body, err := d.client.Post(
			fmt.Sprintf("/v3/table/delete/%s/%s", escape(d.database), escape(unit.DestTable)), nil, "")
		if err != nil {
			return nil, errors.Wrapf(err, "failed to delete table %q", unit.DestTable)
		}
		if status != fasthttp.StatusOK && status != fasthttp.StatusNotFound {
			return nil, &APIError{Status: status, Path: "/v3/table/delete", Body: string(body)}
		}
		log.Info().Str("table", unit.DestTable).Msg("Replaced existing destination table")
	}

	status, body, err := d.client.Post(
		fmt.Sprintf("/v3/table/create/%s/%s/log", escape(d.database), escape(unit.DestTable)), nil, "")
	if err != nil {
		return nil, errors.Wrapf(err, "failed to create table %q", unit.DestTable)
	}
	if status != fasthttp.StatusOK && status != fasthttp.StatusConflict {
		return nil, &APIError{Status: status, Path: "/v3/table/create", Body: string(body)}
	}

	return &tableWriter{client: d.client, database: d.database, table: unit.DestTable}, nil
}

// tableWriter appends chunks to one destination table as gzipped
// JSON-lines imports.
type tableWriter struct {
	client   *Client
	database string
	table    string
}

func (w *tableWriter) WriteChunk(ctx context.Context, chunk *transfer.Chunk) error {
	if len(chunk.Rows) == 0 {
		return nil
	}

	var buf bytes.Buffer
	gz := gzip.NewWriter(&buf)
	enc := json.NewEncoder(gz)
	for _, row := range chunk.Rows {
		if err := enc.Encode(row); err != nil {
			return errors.Wrap(err, "failed to encode row")
		}
	}
	if err := gz.Close(); err != nil {
		return errors.Wrap(err, "failed to compress import body")
	}

	path := fmt.Sprintf("/v3/table/import/%s/%s/jsonl.gz", escape(w.database), escape(w.table))
	status, body, err := w.client.Put(path, buf.Bytes(), "application/octet-stream")
	if err != nil {
		return errors.Wrapf(err, "failed to import chunk into %q", w.table)
	}
	if status != fasthttp.StatusOK {
		return &APIError{Status: status, Path: path, Body: string(body)}
	}
	return nil
}

func (w *tableWriter) Close() error {
	return nil
}

// Abort deletes the table so a failed transfer leaves no partial data
// behind for a later skip-existing run to preserve.
func (w *tableWriter) Abort() error {
	path := fmt.Sprintf("/v3/table/delete/%s/%s", escape(w.database), escape(w.table))
	status, body, err := w.client.Post(path, nil, "")
	if err != nil {
		return errors.Wrapf(err, "failed to delete partial table %q", w.table)
	}
	if status != fasthttp.StatusOK && status != fasthttp.StatusNotFound {
		return &APIError{Status: status, Path: path, Body: string(body)}
	}
	return nil
}
