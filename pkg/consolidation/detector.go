package consolidation

import (
	"context"
	"net/url"
	"sort"
	"strings"
	"time"
	"unicode"

	"github.com/Gobusters/ectologger"
	"github.com/Ramsey-B/clover/pkg/models"
)

const DefaultPageSize = 500

var droppedNameSuffixes = map[string]struct{}{
	"api":     {},
	"service": {},
}

// Detector groups resources whose normalized name or base URL are equal. Matching is exact on the
// normalized key.
type Detector struct {
	resources ResourceStore
	pageSize  int
	timeout   time.Duration
	logger    ectologger.Logger
}

func NewDetector(resources ResourceStore, pageSize int, timeout time.Duration, logger ectologger.Logger) *Detector {
	if pageSize <= 0 {
		pageSize = DefaultPageSize
	}
	if timeout <= 0 {
		timeout = DefaultStoreTimeout
	}
	return &Detector{resources: resources, pageSize: pageSize, timeout: timeout, logger: logger}
}

func (d *Detector) Discover(ctx context.Context) ([]models.DuplicateGroup, error) {
	byName := map[string][]string{}
	byURL := map[string][]string{}

	after := ""
	scanned := 0
	for {
		pageCtx, cancel := context.WithTimeout(ctx, d.timeout)
		page, err := d.resources.ListPage(pageCtx, after, d.pageSize)
		cancel()
		if err != nil {
			d.logger.WithContext(ctx).WithError(err).Error("Failed to list resources")
			return nil, storeUnavailable("list resources", err)
		}

		for _, r := range page {
			if key := NormalizeName(r.Name); key != "" {
				byName[key] = append(byName[key], r.ID)
			}
			if r.HasBaseURL() {
				if key := NormalizeBaseURL(*r.BaseURL); key != "" {
					byURL[key] = append(byURL[key], r.ID)
				}
			}
		}
		scanned += len(page)

		if len(page) < d.pageSize {
			break
		}
		after = page[len(page)-1].ID
	}

	groups := append(collect(models.DuplicateReasonName, byName), collect(models.DuplicateReasonBaseURL, byURL)...)
	sort.SliceStable(groups, func(i, j int) bool {
		if groups[i].Key != groups[j].Key {
			return groups[i].Key < groups[j].Key
		}
		return groups[i].Reason < groups[j].Reason
	})

	d.logger.WithContext(ctx).WithFields(map[string]any{
		"resources_scanned": scanned,
		"groups":            len(groups),
	}).Debug("Discovered duplicate groups")

	return groups, nil
}

func collect(reason models.DuplicateReason, buckets map[string][]string) []models.DuplicateGroup {
	groups := []models.DuplicateGroup{}
	for key, ids := range buckets {
		ids = dedupe(ids)
		if len(ids) < 2 {
			continue
		}
		sort.Strings(ids)
		groups = append(groups, models.DuplicateGroup{Reason: reason, Key: key, ResourceIDs: ids})
	}
	return groups
}

// NormalizeName lower-cases name, splits it on anything that is not a letter or digit and drops
// trailing "api" and "service" tokens. "Payments-API Service" and "payments" share the key "payments".
func NormalizeName(name string) string {
	tokens := strings.FieldsFunc(strings.ToLower(name), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
	for len(tokens) > 1 {
		if _, ok := droppedNameSuffixes[tokens[len(tokens)-1]]; !ok {
			break
		}
		tokens = tokens[:len(tokens)-1]
	}
	return strings.Join(tokens, "")
}

// NormalizeBaseURL reduces a URL to lower-cased host plus path without scheme or trailing slash.
func NormalizeBaseURL(raw string) string {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return ""
	}
	if !strings.Contains(raw, "://") {
		raw = "//" + raw
	}
	u, err := url.Parse(raw)
	if err != nil || u.Host == "" {
		return ""
	}
	return strings.ToLower(u.Host) + strings.TrimRight(u.Path, "/")
}
