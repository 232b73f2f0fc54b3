// Package mapper resolves the column layout of a statement, either by replaying
// a learned bank import profile or by keyword auto-detection, and turns
// confident auto-detections into new profiles.
package mapper

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/FACorreiaa/statement-reconciler/internal/domain/import/sniffer"
)

const (
	// DefaultSimilarity is the Jaccard score at which a stored profile is adopted.
	DefaultSimilarity = 0.70
	// DefaultProposalConfidence is the auto-detect confidence needed to learn a profile.
	DefaultProposalConfidence = 0.7
)

var (
	ErrProfileNotFound  = errors.New("profile not found")
	ErrLowConfidence    = errors.New("mapping confidence too low to learn a profile")
	ErrNotAutoDetected  = errors.New("mapping came from a stored profile")
	ErrIncompleteLayout = errors.New("layout has no date or amount column")
)

// Profile is a learned column layout for one bank statement format.
// ColumnMapping stores header text per field so that it survives column moves
// in files that share a signature.
type Profile struct {
	ID               uuid.UUID
	BankName         string
	HeaderSignature  string
	HeaderRowOffset  int
	DateFormat       string
	DebitCreditLogic sniffer.DebitCreditLogic
	ColumnMapping    map[sniffer.Field]string
	CreatedAt        time.Time
}

// ProfileStore persists profiles. CreateProfile must be idempotent on the
// header signature and return the stored row.
type ProfileStore interface {
	GetProfileBySignature(ctx context.Context, signature string) (*Profile, error)
	ListProfiles(ctx context.Context) ([]*Profile, error)
	CreateProfile(ctx context.Context, p *Profile) (*Profile, error)
}

// Source tells how a mapping was obtained.
type Source string

const (
	SourceExact      Source = "exact"
	SourceSimilar    Source = "similar"
	SourceWeak       Source = "weak"
	SourceAutoDetect Source = "auto"
)

// Resolution is the column layout chosen for one header row.
type Resolution struct {
	Signature  string
	Headers    []string
	HeaderRow  int
	Mapping    sniffer.ColumnMapping
	Logic      sniffer.DebitCreditLogic
	DateFormat string
	Profile    *Profile
	Source     Source
	Similarity float64
	Confidence float64
}

// UsedProfile reports whether a stored profile drove the mapping.
func (r *Resolution) UsedProfile() bool {
	return r.Profile != nil
}

// Mapper resolves header rows against the profile store.
type Mapper struct {
	store              ProfileStore
	logger             *slog.Logger
	similarity         float64
	proposalConfidence float64
}

// Option configures a Mapper.
type Option func(*Mapper)

// WithSimilarity overrides the Jaccard adoption threshold.
func WithSimilarity(v float64) Option {
	return func(m *Mapper) {
		if v > 0 {
			m.similarity = v
		}
	}
}

// WithProposalConfidence overrides the confidence needed to propose a profile.
func WithProposalConfidence(v float64) Option {
	return func(m *Mapper) {
		if v > 0 {
			m.proposalConfidence = v
		}
	}
}

// New creates a Mapper. A nil store disables profile lookup.
func New(store ProfileStore, logger *slog.Logger, opts ...Option) *Mapper {
	if logger == nil {
		logger = slog.Default()
	}
	m := &Mapper{
		store:              store,
		logger:             logger,
		similarity:         DefaultSimilarity,
		proposalConfidence: DefaultProposalConfidence,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Resolve picks the column mapping for a header row: exact profile, similar
// profile, weak profile when the header looks like a statement, then pure
// auto-detection.
func (m *Mapper) Resolve(ctx context.Context, headers []string, headerRow int) (*Resolution, error) {
	sig := sniffer.Signature(headers)
	res := &Resolution{
		Signature: sig,
		Headers:   headers,
		HeaderRow: headerRow,
	}

	if m.store != nil && sig != "" {
		p, err := m.store.GetProfileBySignature(ctx, sig)
		switch {
		case err == nil && p != nil:
			m.applyProfile(res, p, SourceExact, 1)
			return res, nil
		case err != nil && !errors.Is(err, ErrProfileNotFound):
			return nil, fmt.Errorf("failed to get profile by signature: %w", err)
		}

		profiles, err := m.store.ListProfiles(ctx)
		if err != nil {
			return nil, fmt.Errorf("failed to list profiles: %w", err)
		}

		best, score := BestMatch(sig, profiles)
		switch {
		case best != nil && score >= m.similarity:
			m.applyProfile(res, best, SourceSimilar, score)
			return res, nil
		case best != nil && score > 0 && sniffer.HasDateLikeHeader(headers):
			weak := replay(best, headers)
			if weak.Has(sniffer.FieldDate) && weak.HasAmountColumn() {
				m.applyProfile(res, best, SourceWeak, score)
				return res, nil
			}
			m.logger.Debug("weak profile match rejected",
				slog.String("profile", best.BankName),
				slog.Float64("similarity", score))
		}
	}

	res.Mapping = sniffer.DetectColumns(headers)
	res.Logic = res.Mapping.InferLogic()
	res.Source = SourceAutoDetect
	res.Confidence = sniffer.Confidence(res.Mapping)
	return res, nil
}

func (m *Mapper) applyProfile(res *Resolution, p *Profile, src Source, similarity float64) {
	res.Mapping = replay(p, res.Headers)
	res.Logic = p.DebitCreditLogic
	if res.Logic == "" {
		res.Logic = res.Mapping.InferLogic()
	}
	res.DateFormat = p.DateFormat
	res.Profile = p
	res.Source = src
	res.Similarity = similarity
	res.Confidence = sniffer.Confidence(res.Mapping)

	m.logger.Debug("profile matched",
		slog.String("profile_id", p.ID.String()),
		slog.String("bank", p.BankName),
		slog.String("source", string(src)),
		slog.Float64("similarity", similarity))
}

// replay maps each stored header text back onto a column of headers.
func replay(p *Profile, headers []string) sniffer.ColumnMapping {
	byText := make(map[string]int, len(headers))
	for i, h := range headers {
		n := sniffer.Normalize(h)
		if n == "" {
			continue
		}
		if _, dup := byText[n]; !dup {
			byText[n] = i
		}
	}

	mapping := make(sniffer.ColumnMapping, len(p.ColumnMapping))
	used := make(map[int]bool)
	for _, f := range sniffer.Fields {
		text, ok := p.ColumnMapping[f]
		if !ok {
			continue
		}
		col, ok := byText[sniffer.Normalize(text)]
		if !ok || used[col] {
			continue
		}
		mapping[f] = col
		used[col] = true
	}
	return mapping
}

// ProposeOptions carries metadata for a learned profile.
type ProposeOptions struct {
	BankName   string
	DateFormat string
}

// Propose builds a new profile from an auto-detected resolution. It does not
// persist anything.
func (m *Mapper) Propose(res *Resolution, opts ProposeOptions) (*Profile, error) {
	if res.UsedProfile() || res.Source != SourceAutoDetect {
		return nil, ErrNotAutoDetected
	}
	if res.Confidence < m.proposalConfidence {
		return nil, fmt.Errorf("%w: %.2f", ErrLowConfidence, res.Confidence)
	}
	if !res.Mapping.Has(sniffer.FieldDate) || !res.Mapping.HasAmountColumn() {
		return nil, ErrIncompleteLayout
	}

	cols := make(map[sniffer.Field]string, len(res.Mapping))
	for f, idx := range res.Mapping {
		if idx >= 0 && idx < len(res.Headers) {
			cols[f] = res.Headers[idx]
		}
	}

	bank := opts.BankName
	if bank == "" {
		bank = "Unknown"
	}

	return &Profile{
		ID:               uuid.New(),
		BankName:         bank,
		HeaderSignature:  res.Signature,
		HeaderRowOffset:  res.HeaderRow,
		DateFormat:       opts.DateFormat,
		DebitCreditLogic: res.Logic,
		ColumnMapping:    cols,
	}, nil
}

// Commit stores a proposed profile. An existing profile with the same
// signature wins and is returned instead.
func (m *Mapper) Commit(ctx context.Context, p *Profile) (*Profile, error) {
	if m.store == nil {
		return nil, errors.New("no profile store configured")
	}

	existing, err := m.store.GetProfileBySignature(ctx, p.HeaderSignature)
	switch {
	case err == nil && existing != nil:
		return existing, nil
	case err != nil && !errors.Is(err, ErrProfileNotFound):
		return nil, fmt.Errorf("failed to check existing profile: %w", err)
	}

	stored, err := m.store.CreateProfile(ctx, p)
	if err != nil {
		return nil, fmt.Errorf("failed to create profile: %w", err)
	}

	m.logger.Info("learned bank import profile",
		slog.String("profile_id", stored.ID.String()),
		slog.String("bank", stored.BankName),
		slog.String("signature", stored.HeaderSignature))
	return stored, nil
}
