package td

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
	"github.com/valyala/fasthttp"

	"petit-cli/pkg/transfer"
)

const (
	jobPollInterval = 2 * time.Second

	jobStatusSuccess = "success"
	jobStatusError   = "error"
	jobStatusKilled  = "killed"
)

// SourceService reads from the platform: database/table listings and
// chunked query results. Implements transfer.Source.
type SourceService struct {
	client *Client
}

func NewSourceService(client *Client) *SourceService {
	return &SourceService{client: client}
}

func (s *SourceService) DatabaseExists(ctx context.Context, database string) (bool, error) {
	var resp struct {
		Databases []struct {
			Name string `json:"name"`
		} `json:"databases"`
	}
	if err := s.client.getJSON("/v3/database/list", &resp); err != nil {
		return false, errors.Wrap(err, "failed to list databases")
	}
	for _, db := range resp.Databases {
		if db.Name == database {
			return true, nil
		}
	}
	return false, nil
}

func (s *SourceService) ListTables(ctx context.Context, database string) ([]transfer.TableInfo, error) {
	var resp struct {
		Tables []struct {
			Name  string `json:"name"`
			Count int64  `json:"count"`
		} `json:"tables"`
	}
	if err := s.client.getJSON("/v3/table/list/"+escape(database), &resp); err != nil {
		return nil, errors.Wrapf(err, "failed to list tables of %q", database)
	}
	tables := make([]transfer.TableInfo, 0, len(resp.Tables))
	for _, t := range resp.Tables {
		tables = append(tables, transfer.TableInfo{Name: t.Name, RowCount: t.Count})
	}
	return tables, nil
}

// buildQuery renders the unit's full-table select, bounded by the
// partition column when a time window is set.
func buildQuery(unit transfer.UnitOfWork) string {
	q := fmt.Sprintf("SELECT * FROM %s.%s", unit.SourceDatabase, unit.SourceTable)
	if unit.Window != nil {
		col := unit.PartitionColumn
		if col == "" {
			col = "time"
		}
		q += fmt.Sprintf(" WHERE TD_TIME_RANGE(%s, '%s', '%s')",
			col,
			unit.Window.Start.UTC().Format(time.RFC3339),
			unit.Window.End.UTC().Format(time.RFC3339))
	}
	return q
}

// RunQuery issues a query job for the unit and waits for it to finish.
func (s *SourceService) RunQuery(ctx context.Context, unit transfer.UnitOfWork) (transfer.QueryJob, error) {
	query := buildQuery(unit)
	log.Debug().Str("query", query).Msg("Issuing query job")

	args := fasthttp.AcquireArgs()
	args.Set("query", query)
	body := args.QueryString()
	fasthttp.ReleaseArgs(args)

	var issued struct {
		JobID string `json:"job_id"`
	}
	status, respBody, err := s.client.Post("/v3/job/issue/presto/"+escape(unit.SourceDatabase),
		body, "application/x-www-form-urlencoded")
	if err != nil {
		return nil, errors.Wrap(err, "failed to issue query job")
	}
	if status != fasthttp.StatusOK {
		return nil, &APIError{Status: status, Path: "/v3/job/issue/presto", Body: string(respBody)}
	}
	if err := json.Unmarshal(respBody, &issued); err != nil {
		return nil, errors.Wrap(err, "failed to decode issued job")
	}

	show, err := s.waitJob(ctx, issued.JobID)
	if err != nil {
		return nil, err
	}

	columns, err := parseResultSchema(show.HiveResultSchema)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to parse result schema of job %s", issued.JobID)
	}

	return &queryJob{
		client:  s.client,
		jobID:   issued.JobID,
		columns: columns,
		rows:    show.NumRecords,
	}, nil
}

type jobShow struct {
	Status           string `json:"status"`
	HiveResultSchema string `json:"hive_result_schema"`
	NumRecords       int64  `json:"num_records"`
	Debug            struct {
		Stderr string `json:"stderr"`
	} `json:"debug"`
}

func (s *SourceService) waitJob(ctx context.Context, jobID string) (*jobShow, error) {
	ticker := time.NewTicker(jobPollInterval)
	defer ticker.Stop()

	for {
		var show jobShow
		if err := s.client.getJSON("/v3/job/show/"+escape(jobID), &show); err != nil {
			return nil, errors.Wrapf(err, "failed to poll job %s", jobID)
		}

		switch show.Status {
		case jobStatusSuccess:
			return &show, nil
		case jobStatusError, jobStatusKilled:
			msg := strings.TrimSpace(show.Debug.Stderr)
			if msg == "" {
				msg = show.Status
			}
			return nil, errors.Errorf("query job %s failed: %s", jobID, msg)
		}

		log.Debug().Str("job_id", jobID).Str("status", show.Status).Msg("Waiting for query job")

		select {
		case <-ticker.C:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
}

// parseResultSchema decodes the job's result schema, a JSON string of
// [name, type] pairs, into column names.
func parseResultSchema(raw string) ([]string, error) {
	if raw == "" {
		return nil, nil
	}
	var pairs [][]string
	if err := json.Unmarshal([]byte(raw), &pairs); err != nil {
		return nil, err
	}
	columns := make([]string, 0, len(pairs))
	for _, p := range pairs {
		if len(p) == 0 {
			return nil, errors.New("empty schema entry")
		}
		columns = append(columns, p[0])
	}
	return columns, nil
}

// queryJob is a finished platform query whose result is fetched in row
// ranges through the job result endpoint.
type queryJob struct {
	client  *Client
	jobID   string
	columns []string
	rows    int64
}

func (j *queryJob) Columns() []string { return j.columns }
func (j *queryJob) RowCount() int64   { return j.rows }

func (j *queryJob) FetchChunk(ctx context.Context, offset, limit int64) ([]transfer.Row, error) {
	path := fmt.Sprintf("/v3/job/result/%s?format=json&limit=%d&offset=%d", escape(j.jobID), limit, offset)
	status, body, err := j.client.Get(path)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to fetch result rows of job %s", j.jobID)
	}
	if status != fasthttp.StatusOK {
		return nil, &APIError{Status: status, Path: path, Body: string(body)}
	}
	return decodeRows(body, j.columns)
}

// decodeRows parses the result body, one JSON array per line, pairing
// values with the schema's column names.
func decodeRows(body []byte, columns []string) ([]transfer.Row, error) {
	var rows []transfer.Row
	sc := bufio.NewScanner(bytes.NewReader(body))
	sc.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)
	for sc.Scan() {
		line := bytes.TrimSpace(sc.Bytes())
		if len(line) == 0 {
			continue
		}
		var values []any
		if err := json.Unmarshal(line, &values); err != nil {
			return nil, errors.Wrap(err, "failed to decode result row")
		}
		if len(values) != len(columns) {
			return nil, errors.Errorf("result row has %d values, schema has %d columns", len(values), len(columns))
		}
		row := make(transfer.Row, len(columns))
		for i, col := range columns {
			row[col] = values[i]
		}
		rows = append(rows, row)
	}
	if err := sc.Err(); err != nil {
		return nil, errors.Wrap(err, "failed to scan result body")
	}
	return rows, nil
}
