package aliases

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/pelletier/go-toml/v2"
	"github.com/ternarybob/arbor"

	"github.com/finwire/finwire/internal/common"
	"github.com/finwire/finwire/internal/interfaces"
	"github.com/finwire/finwire/internal/models"
)

// resolution order when the caller gives no scheme hint
var schemeOrder = []string{models.SchemeTicker, models.SchemeISIN, models.SchemeName, models.SchemeFirm}

type cacheEntry struct {
	entityKey string
	scheme    string
}

// Resolver maps surface identifiers (tickers, ISINs, names) to canonical
// entity keys. Lookups hit an LRU cache first; misses fall through to the
// alias records in the graph store. Registration invalidates the cache
// entry so a rebind is visible immediately.
type Resolver struct {
	graph  interfaces.GraphStorage
	cache  *lru.Cache[string, cacheEntry]
	logger arbor.ILogger
}

// NewResolver creates the alias resolver and loads seed files if configured.
func NewResolver(config *common.Config, graph interfaces.GraphStorage, logger arbor.ILogger) (*Resolver, error) {
	size := config.Aliases.CacheSize
	if size <= 0 {
		size = 100000
	}
	cache, err := lru.New[string, cacheEntry](size)
	if err != nil {
		return nil, fmt.Errorf("failed to create alias cache: %w", err)
	}

	r := &Resolver{
		graph:  graph,
		cache:  cache,
		logger: logger,
	}

	if config.Aliases.SeedDir != "" {
		if err := r.loadSeeds(context.Background(), config.Aliases.SeedDir); err != nil {
			return nil, err
		}
	}
	return r, nil
}

// normalize canonicalizes a surface value for lookup: trimmed, upper-cased
// for symbol schemes, lower-cased for name schemes.
func normalize(value, scheme string) string {
	value = strings.TrimSpace(value)
	switch scheme {
	case models.SchemeTicker, models.SchemeISIN:
		return strings.ToUpper(value)
	default:
		return strings.ToLower(value)
	}
}

// Resolve looks up value, optionally constrained to a hint scheme. Without
// a hint, schemes are tried in fixed order so a value that is both a ticker
// and a name resolves deterministically.
func (r *Resolver) Resolve(ctx context.Context, value, scheme string) (string, string, bool, error) {
	schemes := schemeOrder
	if scheme != "" {
		schemes = []string{scheme}
	}

	for _, sc := range schemes {
		normalized := normalize(value, sc)
		if normalized == "" {
			continue
		}
		cacheKey := sc + "/" + normalized
		if entry, ok := r.cache.Get(cacheKey); ok {
			return entry.entityKey, entry.scheme, true, nil
		}

		entityKey, ok, err := r.graph.ResolveAlias(ctx, sc, normalized)
		if err != nil {
			return "", "", false, err
		}
		if ok {
			r.cache.Add(cacheKey, cacheEntry{entityKey: entityKey, scheme: sc})
			return entityKey, sc, true, nil
		}
	}
	return "", "", false, nil
}

// Register binds (scheme, value) to an entity and invalidates the cache
// entry.
func (r *Resolver) Register(ctx context.Context, scheme, value, entityKey string) error {
	normalized := normalize(value, scheme)
	if normalized == "" {
		return models.NewServiceError(models.ErrInvalidInput, "alias value must not be empty")
	}
	if err := r.graph.UpsertAlias(ctx, scheme, normalized, entityKey); err != nil {
		return err
	}
	r.cache.Remove(scheme + "/" + normalized)
	return nil
}

// seedFile is the TOML layout of one alias seed file.
type seedFile struct {
	Instruments []seedInstrument `toml:"instruments"`
}

type seedInstrument struct {
	Ticker  string   `toml:"ticker"`
	Name    string   `toml:"name"`
	Type    string   `toml:"type"`
	ISIN    string   `toml:"isin"`
	Company string   `toml:"company"`
	Sector  string   `toml:"sector"`
	Aliases []string `toml:"aliases"` // additional name-scheme surface forms
}

// loadSeeds reads every *.toml file in dir and registers instruments,
// companies, and their aliases. Seeding is idempotent.
func (r *Resolver) loadSeeds(ctx context.Context, dir string) error {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			r.logger.Warn().Str("dir", dir).Msg("Alias seed directory missing, skipping")
			return nil
		}
		return fmt.Errorf("failed to read alias seed dir: %w", err)
	}

	loaded := 0
	for _, entry := range entries {
		if entry.IsDir() || filepath.Ext(entry.Name()) != ".toml" {
			continue
		}
		path := filepath.Join(dir, entry.Name())
		data, err := os.ReadFile(path)
		if err != nil {
			return fmt.Errorf("failed to read seed file %s: %w", path, err)
		}
		var seeds seedFile
		if err := toml.Unmarshal(data, &seeds); err != nil {
			return fmt.Errorf("failed to parse seed file %s: %w", path, err)
		}
		for _, in := range seeds.Instruments {
			if err := r.seedInstrument(ctx, in); err != nil {
				return fmt.Errorf("seed %s (%s): %w", in.Ticker, path, err)
			}
			loaded++
		}
	}
	r.logger.Info().Int("instruments", loaded).Str("dir", dir).Msg("Alias seeds loaded")
	return nil
}

func (r *Resolver) seedInstrument(ctx context.Context, in seedInstrument) error {
	ticker := normalize(in.Ticker, models.SchemeTicker)
	if ticker == "" {
		return models.NewServiceError(models.ErrInvalidInput, "seed instrument without ticker")
	}
	instrType := in.Type
	if instrType == "" {
		instrType = models.InstrumentStock
	}

	instrKey := models.NodeInstrument + "/" + ticker
	if err := r.graph.UpsertEntity(ctx, &models.EntityNode{
		Key:    instrKey,
		Kind:   models.NodeInstrument,
		Name:   in.Name,
		Ticker: ticker,
		Props:  map[string]any{"instrument_type": instrType},
	}); err != nil {
		return err
	}
	if err := r.Register(ctx, models.SchemeTicker, ticker, instrKey); err != nil {
		return err
	}
	if in.ISIN != "" {
		if err := r.Register(ctx, models.SchemeISIN, in.ISIN, instrKey); err != nil {
			return err
		}
	}
	if in.Name != "" {
		if err := r.Register(ctx, models.SchemeName, in.Name, instrKey); err != nil {
			return err
		}
	}
	for _, alias := range in.Aliases {
		if err := r.Register(ctx, models.SchemeName, alias, instrKey); err != nil {
			return err
		}
	}

	if in.Company != "" {
		companyKey := models.NodeCompany + "/" + normalize(in.Company, models.SchemeName)
		if err := r.graph.UpsertEntity(ctx, &models.EntityNode{
			Key:  companyKey,
			Kind: models.NodeCompany,
			Name: in.Company,
		}); err != nil {
			return err
		}
		if err := r.graph.UpsertEntityEdge(ctx, &models.EntityEdge{
			Type: models.EdgeIssuedBy,
			From: instrKey,
			To:   companyKey,
		}); err != nil {
			return err
		}
		if in.Sector != "" {
			sectorKey := models.NodeSector + "/" + normalize(in.Sector, models.SchemeName)
			if err := r.graph.UpsertEntity(ctx, &models.EntityNode{
				Key:  sectorKey,
				Kind: models.NodeSector,
				Name: in.Sector,
			}); err != nil {
				return err
			}
			if err := r.graph.UpsertEntityEdge(ctx, &models.EntityEdge{
				Type: models.EdgeBelongsTo,
				From: companyKey,
				To:   sectorKey,
			}); err != nil {
				return err
			}
		}
	}
	return nil
}
