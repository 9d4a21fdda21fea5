package sandbox

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"strings"
	"time"

	"github.com/google/uuid"
	nanoid "github.com/matoous/go-nanoid/v2"

	"github.com/gnemet/viewsets/database/pool"
	"github.com/gnemet/viewsets/store/sqlstore"
)

// Alphabet of generated names.
const Alphabet = "abcdefghijklmnopqrstuvwxyz"

// ErrNoParents is returned when main records are requested but no parent
// exists to reference.
var ErrNoParents = errors.New("no parent records to reference")

// Options sizes a seeding run.
type Options struct {
	Main      int
	Parent    int
	Tag       int
	Attribute int

	// Probabilities that a new main record is linked to a given tag or
	// carries a value for a given attribute.
	TagProbability       float64
	AttributeProbability float64

	ChunkSize int
	// Seed fixes the random parent, link and number choices; zero picks a
	// random seed. Names and uuids are always random.
	Seed uint64
}

// DefaultOptions are the sizes of the seed command.
var DefaultOptions = Options{
	Main:                 1000,
	Parent:               100,
	Tag:                  100,
	Attribute:            100,
	TagProbability:       0.1,
	AttributeProbability: 0.1,
	ChunkSize:            500,
}

// Counts reports the rows written by a seeding run.
type Counts struct {
	Parent         int
	Main           int
	Tag            int
	Attribute      int
	MainTags       int
	AttributeValue int
}

type seeder struct {
	tx     *sql.Tx
	d      sqlstore.Dialect
	opts   Options
	rnd    *rand.Rand
	logger *slog.Logger
}

// Seed writes random fixtures in one transaction: parents, main records
// referencing random parents, tags and attributes, then links the new main
// records to tags and attributes with the configured probabilities.
func Seed(ctx context.Context, db *pool.DB, opts Options, logger *slog.Logger) (Counts, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if opts.ChunkSize <= 0 {
		opts.ChunkSize = DefaultOptions.ChunkSize
	}
	seed := opts.Seed
	if seed == 0 {
		seed = rand.Uint64()
	}

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return Counts{}, fmt.Errorf("seed: begin: %w", err)
	}
	defer tx.Rollback()

	s := &seeder{
		tx:     tx,
		d:      db.Dialect,
		opts:   opts,
		rnd:    rand.New(rand.NewPCG(seed, seed>>1|1)),
		logger: logger,
	}
	counts, err := s.run(ctx)
	if err != nil {
		return Counts{}, err
	}
	if err := tx.Commit(); err != nil {
		return Counts{}, fmt.Errorf("seed: commit: %w", err)
	}
	logger.Info("fixtures created",
		"parent", counts.Parent,
		"main", counts.Main,
		"tag", counts.Tag,
		"attribute", counts.Attribute,
		"main_tags", counts.MainTags,
		"attribute_value", counts.AttributeValue,
	)
	return counts, nil
}

func (s *seeder) run(ctx context.Context) (Counts, error) {
	var c Counts
	var err error

	if c.Parent, err = s.named(ctx, "parent", s.opts.Parent); err != nil {
		return c, err
	}

	var mains []int64
	if s.opts.Main > 0 {
		parents, err := s.ids(ctx, "parent", 0)
		if err != nil {
			return c, err
		}
		if len(parents) == 0 {
			return c, ErrNoParents
		}
		if mains, err = s.mains(ctx, parents); err != nil {
			return c, err
		}
		c.Main = len(mains)
	}

	if c.Tag, err = s.named(ctx, "tag", s.opts.Tag); err != nil {
		return c, err
	}
	if c.Attribute, err = s.named(ctx, "attribute", s.opts.Attribute); err != nil {
		return c, err
	}
	if len(mains) == 0 {
		return c, nil
	}

	tags, err := s.ids(ctx, "tag", 0)
	if err != nil {
		return c, err
	}
	var rows [][]any
	for _, m := range mains {
		for _, t := range tags {
			if s.rnd.Float64() < s.opts.TagProbability {
				rows = append(rows, []any{m, t})
			}
		}
	}
	if err := s.insert(ctx, "main_tags", []string{"main_id", "tag_id"}, rows); err != nil {
		return c, err
	}
	c.MainTags = len(rows)

	attrs, err := s.ids(ctx, "attribute", 0)
	if err != nil {
		return c, err
	}
	rows = rows[:0]
	for _, m := range mains {
		for _, a := range attrs {
			if s.rnd.Float64() < s.opts.AttributeProbability {
				rows = append(rows, []any{m, a, s.char(10)})
			}
		}
	}
	if err := s.insert(ctx, "attribute_value", []string{"main_id", "attribute_id", "value"}, rows); err != nil {
		return c, err
	}
	c.AttributeValue = len(rows)
	return c, nil
}

// named inserts n records holding a random name into table.
func (s *seeder) named(ctx context.Context, table string, n int) (int, error) {
	rows := make([][]any, n)
	for i := range rows {
		rows[i] = []any{s.char(10)}
	}
	if err := s.insert(ctx, table, []string{"name"}, rows); err != nil {
		return 0, err
	}
	return n, nil
}

var mainColumns = []string{
	"name", "parent_id", "boolean", "char", "date", "datetime", "decimal",
	"duration", "email", "float", "ipaddress", "integer", "json", "slug",
	"text", "time", "url", "uuid", "nullable",
}

// mains inserts the main records and returns their ids.
func (s *seeder) mains(ctx context.Context, parents []int64) ([]int64, error) {
	last, err := s.maxID(ctx, "main")
	if err != nil {
		return nil, err
	}
	rows := make([][]any, s.opts.Main)
	for i := range rows {
		rows[i] = s.main(parents[s.rnd.IntN(len(parents))])
	}
	if err := s.insert(ctx, "main", mainColumns, rows); err != nil {
		return nil, err
	}
	return s.ids(ctx, "main", last)
}

func (s *seeder) main(parent int64) []any {
	epoch := time.Date(2000, 1, 1, 0, 0, 0, 0, time.UTC)
	dt := epoch.Add(time.Duration(s.rnd.Int64N(int64(25*365*24*time.Hour)))).Truncate(time.Second)
	var nullable any
	if s.rnd.IntN(2) == 0 {
		nullable = s.char(20)
	}
	return []any{
		s.char(10),
		parent,
		s.rnd.IntN(2) == 0,
		s.char(10),
		time.Date(dt.Year(), dt.Month(), dt.Day(), 0, 0, 0, 0, time.UTC),
		dt,
		float64(s.rnd.IntN(10000)) / 100,
		s.rnd.Int64N(int64(72 * time.Hour / time.Microsecond)),
		s.char(8) + "@example.com",
		s.rnd.Float64() * 1000,
		fmt.Sprintf("%d.%d.%d.%d", s.rnd.IntN(256), s.rnd.IntN(256), s.rnd.IntN(256), s.rnd.IntN(256)),
		s.rnd.Int64N(1_000_000) - 500_000,
		fmt.Sprintf(`{"key": %q, "value": %d}`, s.char(5), s.rnd.IntN(100)),
		s.char(6) + "-" + s.char(6),
		strings.Repeat(s.char(10)+" ", 1+s.rnd.IntN(10)),
		dt.Format("15:04:05"),
		"https://example.com/" + s.char(8),
		uuid.NewString(),
		nullable,
	}
}

// char returns a random lowercase name of length n.
func (s *seeder) char(n int) string {
	return nanoid.MustGenerate(Alphabet, n)
}

func (s *seeder) maxID(ctx context.Context, table string) (int64, error) {
	var id sql.NullInt64
	q := "SELECT MAX(id) FROM " + s.d.Quote(table)
	if err := s.tx.QueryRowContext(ctx, q).Scan(&id); err != nil {
		return 0, fmt.Errorf("seed %s: %w", table, err)
	}
	return id.Int64, nil
}

// ids returns the ids of table greater than after, in order.
func (s *seeder) ids(ctx context.Context, table string, after int64) ([]int64, error) {
	q := "SELECT id FROM " + s.d.Quote(table) + " WHERE id > " + s.d.Placeholder(1) + " ORDER BY id"
	rows, err := s.tx.QueryContext(ctx, q, after)
	if err != nil {
		return nil, fmt.Errorf("seed %s: %w", table, err)
	}
	defer rows.Close()
	var out []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("seed %s: %w", table, err)
		}
		out = append(out, id)
	}
	return out, rows.Err()
}

// insert writes rows into table in multi-row statements of at most
// ChunkSize rows.
func (s *seeder) insert(ctx context.Context, table string, cols []string, rows [][]any) error {
	quoted := make([]string, len(cols))
	for i, c := range cols {
		quoted[i] = s.d.Quote(c)
	}
	head := "INSERT INTO " + s.d.Quote(table) + " (" + strings.Join(quoted, ", ") + ") VALUES "

	for start := 0; start < len(rows); start += s.opts.ChunkSize {
		chunk := rows[start:min(start+s.opts.ChunkSize, len(rows))]
		var b strings.Builder
		b.WriteString(head)
		args := make([]any, 0, len(chunk)*len(cols))
		for i, row := range chunk {
			if i > 0 {
				b.WriteString(", ")
			}
			b.WriteByte('(')
			for j, v := range row {
				if j > 0 {
					b.WriteString(", ")
				}
				args = append(args, v)
				b.WriteString(s.d.Placeholder(len(args)))
			}
			b.WriteByte(')')
		}
		if _, err := s.tx.ExecContext(ctx, b.String(), args...); err != nil {
			return fmt.Errorf("seed %s: %w", table, err)
		}
		s.logger.Debug("chunk inserted", "table", table, "rows", len(chunk))
	}
	return nil
}
