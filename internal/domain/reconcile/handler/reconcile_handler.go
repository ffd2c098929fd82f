// Package handler exposes reconciliation over Connect RPC and plain HTTP.
//
// The RPC surface uses protobuf well-known types so clients need no
// generated stubs: a workbook goes in as google.protobuf.BytesValue and
// results come back as google.protobuf.Struct.
package handler

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"connectrpc.com/connect"
	"github.com/google/uuid"
	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/structpb"
	"google.golang.org/protobuf/types/known/wrapperspb"

	"github.com/FACorreiaa/gst-reconciler/internal/domain/common"
	"github.com/FACorreiaa/gst-reconciler/internal/domain/reconcile/archive"
	"github.com/FACorreiaa/gst-reconciler/internal/domain/reconcile/repository"
	"github.com/FACorreiaa/gst-reconciler/internal/domain/reconcile/service"
)

const ServiceName = "gstreco.v1.ReconciliationService"

const (
	ReconcileProcedure = "/" + ServiceName + "/Reconcile"
	ListRunsProcedure  = "/" + ServiceName + "/ListRuns"
	GetRunProcedure    = "/" + ServiceName + "/GetRun"
)

// MaxWorkbookBytes bounds an uploaded workbook.
const MaxWorkbookBytes = 32 << 20

const (
	xlsxContentType       = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
	maxWarningsInResponse = 10
	templateDownloadName  = "GST_Reco_Template.xlsx"
	artifactPathFormat    = "/v1/snapshots/%s"
)

// Reconciler is the service surface the handler depends on.
type Reconciler interface {
	ReconcileWorkbook(ctx context.Context, data []byte) (*service.Report, error)
	Template(w io.Writer) error
	ListRuns(ctx context.Context, limit int) ([]*repository.Run, error)
	GetRun(ctx context.Context, id uuid.UUID) (*repository.Run, error)
	History(ctx context.Context) ([]archive.Entry, error)
	OpenSnapshot(ctx context.Context, runID uuid.UUID) (string, []byte, error)
	Snapshot(ctx context.Context, name string) ([]byte, error)
}

// ReconcileHandler implements the ReconciliationService handlers.
type ReconcileHandler struct {
	svc    Reconciler
	logger *slog.Logger
}

// NewReconcileHandler constructs a new handler.
func NewReconcileHandler(svc Reconciler, logger *slog.Logger) *ReconcileHandler {
	return &ReconcileHandler{svc: svc, logger: logger}
}

// Register mounts the Connect procedures and the download routes on mux.
func (h *ReconcileHandler) Register(mux *http.ServeMux, opts ...connect.HandlerOption) {
	opts = append(opts, connect.WithReadMaxBytes(MaxWorkbookBytes))

	mux.Handle(ReconcileProcedure, connect.NewUnaryHandler(ReconcileProcedure, h.Reconcile, opts...))
	mux.Handle(ListRunsProcedure, connect.NewUnaryHandler(ListRunsProcedure, h.ListRuns, opts...))
	mux.Handle(GetRunProcedure, connect.NewUnaryHandler(GetRunProcedure, h.GetRun, opts...))

	mux.HandleFunc("GET /v1/template", h.DownloadTemplate)
	mux.HandleFunc("GET /v1/runs/{id}/artifact", h.DownloadRunArtifact)
	mux.HandleFunc("GET /v1/snapshots/{name}", h.DownloadSnapshot)
}

// Reconcile runs a reconciliation over the uploaded workbook.
func (h *ReconcileHandler) Reconcile(
	ctx context.Context,
	req *connect.Request[wrapperspb.BytesValue],
) (*connect.Response[structpb.Struct], error) {
	if len(req.Msg.GetValue()) == 0 {
		return nil, connect.NewError(connect.CodeInvalidArgument, errors.New("workbook bytes are required"))
	}

	report, err := h.svc.ReconcileWorkbook(ctx, req.Msg.GetValue())
	if err != nil {
		return nil, h.toConnectError(ctx, err)
	}

	body, err := structpb.NewStruct(reportToMap(report))
	if err != nil {
		return nil, connect.NewError(connect.CodeInternal, err)
	}
	return connect.NewResponse(body), nil
}

// ListRuns returns indexed runs and the archived snapshots. Runs are
// omitted when no run index is configured.
func (h *ReconcileHandler) ListRuns(
	ctx context.Context,
	_ *connect.Request[emptypb.Empty],
) (*connect.Response[structpb.Struct], error) {
	out := map[string]any{}

	runs, err := h.svc.ListRuns(ctx, repository.DefaultListLimit)
	switch {
	case errors.Is(err, service.ErrRunIndexDisabled):
	case err != nil:
		return nil, h.toConnectError(ctx, err)
	default:
		list := make([]any, 0, len(runs))
		for _, run := range runs {
			list = append(list, runToMap(run))
		}
		out["runs"] = list
	}

	entries, err := h.svc.History(ctx)
	if err != nil {
		return nil, h.toConnectError(ctx, err)
	}
	snapshots := make([]any, 0, len(entries))
	for _, e := range entries {
		snapshots = append(snapshots, map[string]any{
			"name":       e.Name,
			"size_bytes": e.SizeBytes,
			"modified":   e.ModTime.UTC().Format(time.RFC3339),
			"url":        fmt.Sprintf(artifactPathFormat, e.Name),
		})
	}
	out["snapshots"] = snapshots

	body, err := structpb.NewStruct(out)
	if err != nil {
		return nil, connect.NewError(connect.CodeInternal, err)
	}
	return connect.NewResponse(body), nil
}

// GetRun returns one indexed run by ID.
func (h *ReconcileHandler) GetRun(
	ctx context.Context,
	req *connect.Request[wrapperspb.StringValue],
) (*connect.Response[structpb.Struct], error) {
	id, err := uuid.Parse(req.Msg.GetValue())
	if err != nil {
		return nil, connect.NewError(connect.CodeInvalidArgument, errors.New("invalid run id"))
	}

	run, err := h.svc.GetRun(ctx, id)
	if err != nil {
		return nil, h.toConnectError(ctx, err)
	}

	body, err := structpb.NewStruct(runToMap(run))
	if err != nil {
		return nil, connect.NewError(connect.CodeInternal, err)
	}
	return connect.NewResponse(body), nil
}

// DownloadTemplate serves the blank input workbook.
func (h *ReconcileHandler) DownloadTemplate(w http.ResponseWriter, r *http.Request) {
	var buf bytes.Buffer
	if err := h.svc.Template(&buf); err != nil {
		h.logger.ErrorContext(r.Context(), "failed to build template", "error", err)
		http.Error(w, "failed to build template", http.StatusInternalServerError)
		return
	}
	h.writeWorkbook(w, r, templateDownloadName, buf.Bytes())
}

// DownloadRunArtifact serves the annotated workbook of an indexed run.
func (h *ReconcileHandler) DownloadRunArtifact(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		http.Error(w, "invalid run id", http.StatusBadRequest)
		return
	}

	name, data, err := h.svc.OpenSnapshot(r.Context(), id)
	if err != nil {
		h.writeHTTPError(w, r, err)
		return
	}
	h.writeWorkbook(w, r, name, data)
}

// DownloadSnapshot serves an archived workbook by file name.
func (h *ReconcileHandler) DownloadSnapshot(w http.ResponseWriter, r *http.Request) {
	name := r.PathValue("name")
	data, err := h.svc.Snapshot(r.Context(), name)
	if err != nil {
		h.writeHTTPError(w, r, err)
		return
	}
	h.writeWorkbook(w, r, name, data)
}

func (h *ReconcileHandler) writeWorkbook(w http.ResponseWriter, r *http.Request, name string, data []byte) {
	setDownloadHeaders(w, name)
	if _, err := w.Write(data); err != nil {
		h.logger.ErrorContext(r.Context(), "failed to write workbook response", "error", err)
	}
}

func setDownloadHeaders(w http.ResponseWriter, name string) {
	w.Header().Set("Content-Type", xlsxContentType)
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", name))
	w.Header().Set("Cache-Control", "no-store")
	w.Header().Set("X-Content-Type-Options", "nosniff")
}

// connectCode maps domain errors onto Connect codes.
func connectCode(err error) connect.Code {
	switch {
	case errors.Is(err, service.ErrInvalidWorkbook), errors.Is(err, archive.ErrInvalidName):
		return connect.CodeInvalidArgument
	case errors.Is(err, common.ErrConflict):
		return connect.CodeAlreadyExists
	case errors.Is(err, common.ErrNotFound), errors.Is(err, archive.ErrSnapshotNotFound):
		return connect.CodeNotFound
	case errors.Is(err, service.ErrRunIndexDisabled):
		return connect.CodeFailedPrecondition
	case errors.Is(err, context.Canceled):
		return connect.CodeCanceled
	case errors.Is(err, context.DeadlineExceeded):
		return connect.CodeDeadlineExceeded
	default:
		return connect.CodeInternal
	}
}

func (h *ReconcileHandler) toConnectError(ctx context.Context, err error) error {
	code := connectCode(err)
	if code == connect.CodeInternal {
		h.logger.ErrorContext(ctx, "reconciliation request failed", "error", err)
	}
	return connect.NewError(code, err)
}

func (h *ReconcileHandler) writeHTTPError(w http.ResponseWriter, r *http.Request, err error) {
	status := http.StatusInternalServerError
	switch connectCode(err) {
	case connect.CodeInvalidArgument:
		status = http.StatusBadRequest
	case connect.CodeNotFound:
		status = http.StatusNotFound
	case connect.CodeFailedPrecondition:
		status = http.StatusConflict
	default:
		h.logger.ErrorContext(r.Context(), "download failed", "error", err)
	}
	http.Error(w, err.Error(), status)
}

func reportToMap(report *service.Report) map[string]any {
	sum := report.Result.Summary
	percent, _ := sum.MatchPercent.Float64()

	warnings := make([]any, 0, len(report.Result.Warnings))
	for i, w := range report.Result.Warnings {
		if i == maxWarningsInResponse {
			warnings = append(warnings, fmt.Sprintf("(and %d more)", len(report.Result.Warnings)-i))
			break
		}
		warnings = append(warnings, w.String())
	}

	return map[string]any{
		"run_id":       report.RunID.String(),
		"archive_name": report.ArchiveName,
		"artifact_url": fmt.Sprintf(artifactPathFormat, report.ArchiveName),
		"created_at":   report.CreatedAt.UTC().Format(time.RFC3339),
		"summary": map[string]any{
			"total":             sum.Total,
			"matched":           sum.Matched,
			"unmatched":         sum.Unmatched,
			"match_percent":     percent,
			"regulator_total":   sum.RegulatorTotal,
			"regulator_matched": sum.RegulatorMatched,
			"grouped_matches":   sum.GroupedMatches,
			"fallback_matches":  sum.FallbackMatches,
			"coerced_cells":     sum.CoercedCells,
			"tolerance":         sum.Tolerance.String(),
			"elapsed_ms":        sum.Elapsed.Milliseconds(),
		},
		"warnings": warnings,
	}
}

func runToMap(run *repository.Run) map[string]any {
	return map[string]any{
		"run_id":            run.ID.String(),
		"archive_name":      run.ArchiveName,
		"artifact_url":      fmt.Sprintf(artifactPathFormat, run.ArchiveName),
		"total":             run.BooksTotal,
		"matched":           run.BooksMatched,
		"unmatched":         run.BooksTotal - run.BooksMatched,
		"match_percent":     run.MatchPercent,
		"regulator_total":   run.RegulatorTotal,
		"regulator_matched": run.RegulatorMatched,
		"grouped_matches":   run.GroupedMatches,
		"fallback_matches":  run.FallbackMatches,
		"coerced_cells":     run.CoercedCells,
		"warning_count":     run.WarningCount,
		"tolerance":         run.Tolerance,
		"elapsed_ms":        run.ElapsedMs,
		"created_at":        run.CreatedAt.UTC().Format(time.RFC3339),
	}
}
