package retrieval

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// RegulationRow is a regulation passage as stored
type RegulationRow struct {
	ID         string
	Section    string
	Content    string
	Similarity float64
}

// DocRow is a design-knowledge or health-and-safety passage as stored
type DocRow struct {
	ID         string
	Topic      string
	Content    string
	Similarity float64
}

// Store is the read-only retrieval collaborator
type Store interface {
	ExactLookup(ctx context.Context, circuitType string, powerW float64, terms []string) ([]string, error)
	FetchRegulations(ctx context.Context, ids []string) ([]RegulationRow, error)
	MatchRegulations(ctx context.Context, vector []float32, threshold float64, limit int) ([]RegulationRow, error)
	MatchDesignKnowledge(ctx context.Context, vector []float32, threshold float64, limit int) ([]DocRow, error)
	MatchHealthSafety(ctx context.Context, vector []float32, threshold float64, limit int) ([]DocRow, error)
	KeywordRegulations(ctx context.Context, keyword string, limit int) ([]RegulationRow, error)
	KeywordDesignKnowledge(ctx context.Context, keyword string, limit int) ([]DocRow, error)
}

// PGStore reads the knowledge corpora from Postgres with pgvector
type PGStore struct {
	pool *pgxpool.Pool
}

// NewPGStore creates a store over an existing pool
func NewPGStore(pool *pgxpool.Pool) *PGStore {
	return &PGStore{pool: pool}
}

// ExactLookup returns regulation ids from the indexed lookup
func (s *PGStore) ExactLookup(ctx context.Context, circuitType string, powerW float64, terms []string) ([]string, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT regulation_id FROM search_regulations_index($1, $2, $3)`,
		circuitType, powerW, terms,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to query regulation index: %w", err)
	}
	ids, err := pgx.CollectRows(rows, pgx.RowTo[string])
	if err != nil {
		return nil, fmt.Errorf("failed to scan regulation index: %w", err)
	}
	return ids, nil
}

// FetchRegulations loads full regulation content for ids
func (s *PGStore) FetchRegulations(ctx context.Context, ids []string) ([]RegulationRow, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	rows, err := s.pool.Query(ctx, `
		SELECT id, section, content
		FROM regulations
		WHERE id = ANY($1)
	`, ids)
	if err != nil {
		return nil, fmt.Errorf("failed to query regulations: %w", err)
	}
	defer rows.Close()

	byID := make(map[string]RegulationRow, len(ids))
	for rows.Next() {
		var r RegulationRow
		if err := rows.Scan(&r.ID, &r.Section, &r.Content); err != nil {
			return nil, fmt.Errorf("failed to scan regulation: %w", err)
		}
		byID[r.ID] = r
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating regulations: %w", err)
	}

	// keep lookup order
	out := make([]RegulationRow, 0, len(byID))
	for _, id := range ids {
		if r, ok := byID[id]; ok {
			out = append(out, r)
			delete(byID, id)
		}
	}
	return out, nil
}

// MatchRegulations runs the regulation similarity search
func (s *PGStore) MatchRegulations(ctx context.Context, vector []float32, threshold float64, limit int) ([]RegulationRow, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, section, content, similarity FROM match_regulations($1::vector, $2, $3)`,
		vectorLiteral(vector), threshold, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to match regulations: %w", err)
	}
	defer rows.Close()

	var out []RegulationRow
	for rows.Next() {
		var r RegulationRow
		if err := rows.Scan(&r.ID, &r.Section, &r.Content, &r.Similarity); err != nil {
			return nil, fmt.Errorf("failed to scan regulation match: %w", err)
		}
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating regulation matches: %w", err)
	}
	return out, nil
}

// MatchDesignKnowledge runs the design-knowledge similarity search
func (s *PGStore) MatchDesignKnowledge(ctx context.Context, vector []float32, threshold float64, limit int) ([]DocRow, error) {
	return s.matchDocs(ctx, "match_design_knowledge", vector, threshold, limit)
}

// MatchHealthSafety runs the health-and-safety similarity search
func (s *PGStore) MatchHealthSafety(ctx context.Context, vector []float32, threshold float64, limit int) ([]DocRow, error) {
	return s.matchDocs(ctx, "match_health_safety", vector, threshold, limit)
}

func (s *PGStore) matchDocs(ctx context.Context, function string, vector []float32, threshold float64, limit int) ([]DocRow, error) {
	query := fmt.Sprintf(`SELECT id, topic, content, similarity FROM %s($1::vector, $2, $3)`, function)
	rows, err := s.pool.Query(ctx, query, vectorLiteral(vector), threshold, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to call %s: %w", function, err)
	}
	defer rows.Close()

	var out []DocRow
	for rows.Next() {
		var d DocRow
		if err := rows.Scan(&d.ID, &d.Topic, &d.Content, &d.Similarity); err != nil {
			return nil, fmt.Errorf("failed to scan %s row: %w", function, err)
		}
		out = append(out, d)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating %s rows: %w", function, err)
	}
	return out, nil
}

// KeywordRegulations matches regulation text and section titles by substring
func (s *PGStore) KeywordRegulations(ctx context.Context, keyword string, limit int) ([]RegulationRow, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, section, content
		FROM regulations
		WHERE content ILIKE $1 OR section ILIKE $1
		LIMIT $2
	`, likePattern(keyword), limit)
	if err != nil {
		return nil, fmt.Errorf("failed to search regulations: %w", err)
	}
	defer rows.Close()

	var out []RegulationRow
	for rows.Next() {
		var r RegulationRow
		if err := rows.Scan(&r.ID, &r.Section, &r.Content); err != nil {
			return nil, fmt.Errorf("failed to scan regulation: %w", err)
		}
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating regulations: %w", err)
	}
	return out, nil
}

// KeywordDesignKnowledge matches design-knowledge text and topics by substring
func (s *PGStore) KeywordDesignKnowledge(ctx context.Context, keyword string, limit int) ([]DocRow, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, topic, content
		FROM design_knowledge
		WHERE content ILIKE $1 OR topic ILIKE $1
		LIMIT $2
	`, likePattern(keyword), limit)
	if err != nil {
		return nil, fmt.Errorf("failed to search design knowledge: %w", err)
	}
	defer rows.Close()

	var out []DocRow
	for rows.Next() {
		var d DocRow
		if err := rows.Scan(&d.ID, &d.Topic, &d.Content); err != nil {
			return nil, fmt.Errorf("failed to scan design knowledge: %w", err)
		}
		out = append(out, d)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating design knowledge: %w", err)
	}
	return out, nil
}

// vectorLiteral renders v in pgvector's text input format
func vectorLiteral(v []float32) string {
	var b strings.Builder
	b.Grow(len(v)*10 + 2)
	b.WriteByte('[')
	for i, f := range v {
		if i > 0 {
			b.WriteByte(',')
		}
		b.WriteString(strconv.FormatFloat(float64(f), 'f', -1, 32))
	}
	b.WriteByte(']')
	return b.String()
}

func likePattern(keyword string) string {
	r := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
	return "%" + r.Replace(strings.TrimSpace(keyword)) + "%"
}
