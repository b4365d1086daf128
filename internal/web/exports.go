package web

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/batalabs/finchat/internal/api"
	"github.com/batalabs/finchat/internal/export"
)

const xlsxContentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"

func (s *Server) handleExportHistorical(w http.ResponseWriter, r *http.Request) {
	symbol := r.URL.Query().Get("symbol")
	s.exportDataset(w, r, "historical "+symbol, func(ctx context.Context) (*api.Dataset, error) {
		return s.session(w, r).ctrl.HistoricalPrices(ctx, symbol)
	})
}

func (s *Server) handleExportNews(w http.ResponseWriter, r *http.Request) {
	symbol := r.URL.Query().Get("symbol")
	s.exportDataset(w, r, "news "+symbol, func(ctx context.Context) (*api.Dataset, error) {
		return s.session(w, r).ctrl.CompanyNews(ctx, symbol)
	})
}

func (s *Server) handleExportPrices(w http.ResponseWriter, r *http.Request) {
	var symbols []string
	if raw := r.URL.Query().Get("symbols"); raw != "" {
		symbols = strings.Split(raw, ",")
	}
	s.exportDataset(w, r, "prices", func(ctx context.Context) (*api.Dataset, error) {
		return s.session(w, r).ctrl.StockPrices(ctx, symbols)
	})
}

// exportDataset fetches a dataset and streams it as an xlsx attachment.
// The workbook is built in memory so a failure can still be reported with
// a proper status code.
func (s *Server) exportDataset(w http.ResponseWriter, r *http.Request, name string, fetch func(context.Context) (*api.Dataset, error)) {
	ds, err := fetch(r.Context())
	if err != nil {
		s.log.Printf("web: export %s: %v", name, err)
		http.Error(w, err.Error(), exportStatus(err))
		return
	}

	sheet := export.SheetName(strings.TrimSpace(name))
	var buf bytes.Buffer
	if err := export.Write(&buf, sheet, ds.Data); err != nil {
		if errors.Is(err, export.ErrNoRecords) {
			http.Error(w, "no data for "+strings.TrimSpace(name), http.StatusNotFound)
			return
		}
		s.log.Printf("web: export %s: %v", name, err)
		http.Error(w, "failed to build spreadsheet", http.StatusInternalServerError)
		return
	}

	filename := strings.ReplaceAll(strings.ToLower(sheet), " ", "-") + ".xlsx"
	w.Header().Set("Content-Type", xlsxContentType)
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", filename))
	w.Write(buf.Bytes())
}

// exportStatus maps a lookup error to a response status.
func exportStatus(err error) int {
	switch api.KindOf(err) {
	case api.KindUnknown:
		// Local validation, e.g. a missing symbol.
		return http.StatusBadRequest
	case api.KindCanceled:
		return http.StatusServiceUnavailable
	case api.KindApplication:
		return http.StatusNotFound
	default:
		return http.StatusBadGateway
	}
}
