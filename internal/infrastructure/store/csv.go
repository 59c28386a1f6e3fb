package store

import (
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"regexp"
	"strings"

	"go.uber.org/zap"

	"github.com/tradelens/backend/internal/domain"
)

// Classification codes in the feed are fully qualified ten-digit statistical
// suffixes, dot separated.
var feedHTSPattern = regexp.MustCompile(`^\d{4}\.\d{2}\.\d{2}\.\d{2}$`)

const invalidRowSampleLimit = 5

var requiredFeedColumns = []string{"item_id", "item_description", "final_hts"}

// ReadProductsCSV parses an intake feed. Extra columns are ignored; rows
// missing a required field or carrying a malformed classification code are
// skipped and counted, not fatal.
func ReadProductsCSV(r io.Reader, log *zap.Logger) ([]domain.Product, domain.ImportReport, error) {
	if log == nil {
		log = zap.NewNop()
	}
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1

	header, err := cr.Read()
	if err != nil {
		return nil, domain.ImportReport{}, fmt.Errorf("failed to read feed header: %w", err)
	}
	index := make(map[string]int, len(header))
	for i, name := range header {
		index[strings.ToLower(strings.TrimSpace(name))] = i
	}
	for _, name := range requiredFeedColumns {
		if _, ok := index[name]; !ok {
			return nil, domain.ImportReport{}, fmt.Errorf("feed is missing required column %q", name)
		}
	}

	var (
		products []domain.Product
		report   domain.ImportReport
	)
	for {
		rec, err := cr.Read()
		if err == io.EOF {
			return products, report, nil
		}
		if err != nil {
			return nil, report, fmt.Errorf("failed to read feed row: %w", err)
		}
		report.RowsRead++

		get := func(col string) string {
			i, ok := index[col]
			if !ok || i >= len(rec) {
				return ""
			}
			return strings.TrimSpace(rec[i])
		}

		p := domain.Product{
			ItemID:           get("item_id"),
			Description:      get("item_description"),
			ProductGroup:     get("product_group"),
			ProductGroupCode: get("product_group_code"),
			ProductGroupDesc: get("product_group_description"),
			MaterialClass:    get("material_class"),
			MaterialDetail:   get("material_detail"),
			ManfClass:        get("manf_class"),
			SupplierID:       get("supplier_id"),
			SupplierName:     get("supplier_name"),
			CountryOfOrigin:  get("country_of_origin"),
			ImportType:       get("import_type"),
			PortOfDelivery:   get("port_of_delivery"),
			HTSCode:          get("final_hts"),
			HTSDescription:   get("hts_description"),
		}

		var reason string
		switch {
		case p.ItemID == "":
			reason = "missing item_id"
		case p.Description == "":
			reason = "missing item_description"
		case p.HTSCode == "":
			reason = "missing final_hts"
		case !feedHTSPattern.MatchString(p.HTSCode):
			reason = "malformed final_hts " + p.HTSCode
		}
		if reason != "" {
			report.Skipped++
			if len(report.InvalidSample) < invalidRowSampleLimit {
				report.InvalidSample = append(report.InvalidSample, fmt.Sprintf("row %d: %s", report.RowsRead, reason))
			}
			log.Warn("skipping feed row",
				zap.Int("row", report.RowsRead),
				zap.String("reason", reason))
			continue
		}
		products = append(products, p)
	}
}

// ImportCSV reads the feed at path and inserts the valid rows, skipping ids
// already present in the store.
func (s *ProductStore) ImportCSV(ctx context.Context, path string) (domain.ImportReport, error) {
	f, err := os.Open(path)
	if err != nil {
		return domain.ImportReport{}, fmt.Errorf("failed to open feed: %w", err)
	}
	defer f.Close()

	products, report, err := ReadProductsCSV(f, s.log)
	if err != nil {
		return report, err
	}
	inserted, err := s.Insert(ctx, products)
	if err != nil {
		return report, err
	}
	report.Inserted = inserted
	s.log.Info("feed imported",
		zap.String("path", path),
		zap.Int("rowsRead", report.RowsRead),
		zap.Int("inserted", report.Inserted),
		zap.Int("skipped", report.Skipped))
	return report, nil
}
