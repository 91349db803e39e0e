package crawler

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

// Extraction strategy names accepted by NewExtraction.
const (
	ExtractionLink = "link"
	ExtractionName = "name"
)

// Default selectors for the two listing layouts.
const (
	DefaultResultContainer = `div[data-chameleon-result-urn]`
	DefaultProfileLink     = `a[href*="linkedin.com/in/"]`
	DefaultCardContainer   = `div.mn-connection-card__details`
	DefaultCardName        = `.mn-connection-card__name`
	DefaultCardDetail      = `.mn-connection-card__occupation`
)

// ExtractionConfig selects and parameterizes an ExtractionStrategy.
type ExtractionConfig struct {
	Strategy          string
	ContainerSelector string
	LinkSelector      string
	NameSelector      string
	DetailSelector    string
}

// NewExtraction builds the strategy named by cfg.Strategy, filling default
// selectors for the chosen layout.
func NewExtraction(cfg ExtractionConfig) (ExtractionStrategy, error) {
	switch cfg.Strategy {
	case ExtractionLink:
		return &LinkExtractor{
			Container: orDefault(cfg.ContainerSelector, DefaultResultContainer),
			Link:      orDefault(cfg.LinkSelector, DefaultProfileLink),
		}, nil
	case ExtractionName:
		return &NameExtractor{
			Container:    orDefault(cfg.ContainerSelector, DefaultCardContainer),
			NameSelector: orDefault(cfg.NameSelector, DefaultCardName),
			Detail:       orDefault(cfg.DetailSelector, DefaultCardDetail),
		}, nil
	default:
		return nil, fmt.Errorf("unknown extraction strategy %q", cfg.Strategy)
	}
}

// LinkExtractor keys records by the profile link found in each container.
type LinkExtractor struct {
	Container string
	Link      string
}

// Name implements ExtractionStrategy.
func (*LinkExtractor) Name() string { return ExtractionLink }

// ContainerSelector implements ExtractionStrategy.
func (l *LinkExtractor) ContainerSelector() string { return l.Container }

// Extract implements ExtractionStrategy.
func (l *LinkExtractor) Extract(ctx context.Context, client PageClient) (Extraction, error) {
	base, err := client.Location(ctx)
	if err != nil {
		return Extraction{}, fmt.Errorf("read location: %w", err)
	}
	containers, err := client.FindAll(ctx, l.Container)
	if err != nil {
		return Extraction{}, fmt.Errorf("find result containers: %w", err)
	}

	out := Extraction{Records: make([]Record, 0, len(containers))}
	for _, c := range containers {
		rec, err := l.extractOne(ctx, client, base, c)
		if err != nil {
			out.Skipped++
			continue
		}
		out.Records = append(out.Records, rec)
	}
	return out, nil
}

func (l *LinkExtractor) extractOne(ctx context.Context, client PageClient, base string, container Element) (Record, error) {
	link, err := client.FindOne(ctx, container, l.Link)
	if err != nil {
		return Record{}, fmt.Errorf("%w: find link: %w", ErrExtraction, err)
	}
	href, ok, err := client.Attribute(ctx, link, "href")
	if err != nil {
		return Record{}, fmt.Errorf("%w: read href: %w", ErrExtraction, err)
	}
	if !ok || strings.TrimSpace(href) == "" {
		return Record{}, fmt.Errorf("%w: link has no href", ErrExtraction)
	}
	canonical, err := CanonicalURL(base, href)
	if err != nil {
		return Record{}, fmt.Errorf("%w: %w", ErrExtraction, err)
	}
	key, err := KeyFromURL(canonical)
	if err != nil {
		return Record{}, fmt.Errorf("%w: %w", ErrExtraction, err)
	}

	rec := Record{Key: key, URL: canonical}
	if text, err := client.Text(ctx, link); err == nil {
		if name := strings.TrimSpace(text); name != "" {
			rec.Fields = map[string]string{"name": firstLine(name)}
		}
	}
	return rec, nil
}

// NameExtractor keys records by the display name of each card.
type NameExtractor struct {
	Container    string
	NameSelector string
	Detail       string
}

// Name implements ExtractionStrategy.
func (*NameExtractor) Name() string { return ExtractionName }

// ContainerSelector implements ExtractionStrategy.
func (n *NameExtractor) ContainerSelector() string { return n.Container }

// Extract implements ExtractionStrategy.
func (n *NameExtractor) Extract(ctx context.Context, client PageClient) (Extraction, error) {
	containers, err := client.FindAll(ctx, n.Container)
	if err != nil {
		return Extraction{}, fmt.Errorf("find cards: %w", err)
	}

	out := Extraction{Records: make([]Record, 0, len(containers))}
	for _, c := range containers {
		rec, err := n.extractOne(ctx, client, c)
		if err != nil {
			out.Skipped++
			continue
		}
		out.Records = append(out.Records, rec)
	}
	return out, nil
}

func (n *NameExtractor) extractOne(ctx context.Context, client PageClient, container Element) (Record, error) {
	nameEl, err := client.FindOne(ctx, container, n.NameSelector)
	if err != nil {
		return Record{}, fmt.Errorf("%w: find name: %w", ErrExtraction, err)
	}
	text, err := client.Text(ctx, nameEl)
	if err != nil {
		return Record{}, fmt.Errorf("%w: read name: %w", ErrExtraction, err)
	}
	name := strings.TrimSpace(text)
	if name == "" {
		return Record{}, fmt.Errorf("%w: empty name", ErrExtraction)
	}

	fields := map[string]string{"name": name}
	if n.Detail != "" {
		detailEl, err := client.FindOne(ctx, container, n.Detail)
		switch {
		case err == nil:
			if detail, err := client.Text(ctx, detailEl); err == nil {
				fields["occupation"] = strings.TrimSpace(detail)
			}
		case !errors.Is(err, ErrElementNotFound):
			return Record{}, fmt.Errorf("%w: find detail: %w", ErrExtraction, err)
		}
	}
	return Record{Key: name, Fields: fields}, nil
}

func orDefault(v, def string) string {
	if strings.TrimSpace(v) == "" {
		return def
	}
	return v
}

func firstLine(s string) string {
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		return strings.TrimSpace(s[:i])
	}
	return s
}
