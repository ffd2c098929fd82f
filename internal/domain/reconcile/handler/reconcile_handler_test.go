package handler

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"connectrpc.com/connect"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/structpb"
	"google.golang.org/protobuf/types/known/wrapperspb"

	"github.com/FACorreiaa/gst-reconciler/internal/domain/common"
	"github.com/FACorreiaa/gst-reconciler/internal/domain/reconcile/archive"
	"github.com/FACorreiaa/gst-reconciler/internal/domain/reconcile/ledger"
	"github.com/FACorreiaa/gst-reconciler/internal/domain/reconcile/matcher"
	"github.com/FACorreiaa/gst-reconciler/internal/domain/reconcile/repository"
	"github.com/FACorreiaa/gst-reconciler/internal/domain/reconcile/service"
	"github.com/FACorreiaa/gst-reconciler/internal/domain/reconcile/workbook"
)

type stubReconciler struct {
	runs      map[uuid.UUID]*repository.Run
	snapshots map[string][]byte
	indexOff  bool
	reconcile func(data []byte) (*service.Report, error)
}

func (s *stubReconciler) ReconcileWorkbook(_ context.Context, data []byte) (*service.Report, error) {
	return s.reconcile(data)
}

func (s *stubReconciler) Template(w io.Writer) error {
	return workbook.Template(w)
}

func (s *stubReconciler) ListRuns(_ context.Context, _ int) ([]*repository.Run, error) {
	if s.indexOff {
		return nil, service.ErrRunIndexDisabled
	}
	var out []*repository.Run
	for _, run := range s.runs {
		out = append(out, run)
	}
	return out, nil
}

func (s *stubReconciler) GetRun(_ context.Context, id uuid.UUID) (*repository.Run, error) {
	if s.indexOff {
		return nil, service.ErrRunIndexDisabled
	}
	run, ok := s.runs[id]
	if !ok {
		return nil, common.ErrNotFound
	}
	return run, nil
}

func (s *stubReconciler) History(_ context.Context) ([]archive.Entry, error) {
	var out []archive.Entry
	for name, data := range s.snapshots {
		out = append(out, archive.Entry{Name: name, SizeBytes: int64(len(data)), ModTime: time.Unix(0, 0)})
	}
	return out, nil
}

func (s *stubReconciler) Snapshot(_ context.Context, name string) ([]byte, error) {
	if err := archive.ValidateName(name); err != nil {
		return nil, err
	}
	data, ok := s.snapshots[name]
	if !ok {
		return nil, archive.ErrSnapshotNotFound
	}
	return data, nil
}

func (s *stubReconciler) OpenSnapshot(ctx context.Context, id uuid.UUID) (string, []byte, error) {
	run, err := s.GetRun(ctx, id)
	if err != nil {
		return "", nil, err
	}
	data, err := s.Snapshot(ctx, run.ArchiveName)
	return run.ArchiveName, data, err
}

func newTestServer(t *testing.T, svc Reconciler) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	NewReconcileHandler(svc, slog.New(slog.NewTextHandler(io.Discard, nil))).Register(mux)
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func TestReconcile_EndToEnd(t *testing.T) {
	store, err := archive.NewFileStore(t.TempDir())
	require.NoError(t, err)
	svc := service.NewReconciliationService(nil, store, service.Options{}, slog.New(slog.NewTextHandler(io.Discard, nil)))
	srv := newTestServer(t, svc)

	var tmpl bytes.Buffer
	require.NoError(t, workbook.Template(&tmpl))

	client := connect.NewClient[wrapperspb.BytesValue, structpb.Struct](srv.Client(), srv.URL+ReconcileProcedure)
	resp, err := client.CallUnary(context.Background(), connect.NewRequest(wrapperspb.Bytes(tmpl.Bytes())))
	require.NoError(t, err)

	fields := resp.Msg.GetFields()
	summary := fields["summary"].GetStructValue().GetFields()
	assert.Equal(t, float64(2), summary["total"].GetNumberValue())
	assert.Equal(t, float64(2), summary["matched"].GetNumberValue())
	assert.Equal(t, float64(100), summary["match_percent"].GetNumberValue())
	assert.Equal(t, "1", summary["tolerance"].GetStringValue())

	// The artifact link serves the archived snapshot
	artifactURL := fields["artifact_url"].GetStringValue()
	require.NotEmpty(t, artifactURL)
	dl, err := srv.Client().Get(srv.URL + artifactURL)
	require.NoError(t, err)
	defer dl.Body.Close()
	assert.Equal(t, http.StatusOK, dl.StatusCode)
	assert.Equal(t, xlsxContentType, dl.Header.Get("Content-Type"))
	body, err := io.ReadAll(dl.Body)
	require.NoError(t, err)
	_, _, err = workbook.Read(bytes.NewReader(body))
	assert.NoError(t, err)

	// ListRuns still returns snapshots with the run index disabled
	listClient := connect.NewClient[emptypb.Empty, structpb.Struct](srv.Client(), srv.URL+ListRunsProcedure)
	list, err := listClient.CallUnary(context.Background(), connect.NewRequest(&emptypb.Empty{}))
	require.NoError(t, err)
	_, hasRuns := list.Msg.GetFields()["runs"]
	assert.False(t, hasRuns)
	assert.Len(t, list.Msg.GetFields()["snapshots"].GetListValue().GetValues(), 1)
}

func TestReconcile_ErrorCodes(t *testing.T) {
	tests := []struct {
		name string
		data []byte
		err  error
		code connect.Code
	}{
		{"empty upload", nil, nil, connect.CodeInvalidArgument},
		{"schema error", []byte("x"), fmt.Errorf("%w: missing SGST", service.ErrInvalidWorkbook), connect.CodeInvalidArgument},
		{"duplicate run", []byte("x"), fmt.Errorf("failed to record run: %w", common.ErrConflict), connect.CodeAlreadyExists},
		{"storage failure", []byte("x"), fmt.Errorf("failed to archive snapshot: disk full"), connect.CodeInternal},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			stub := &stubReconciler{reconcile: func([]byte) (*service.Report, error) { return nil, tc.err }}
			srv := newTestServer(t, stub)

			client := connect.NewClient[wrapperspb.BytesValue, structpb.Struct](srv.Client(), srv.URL+ReconcileProcedure)
			_, err := client.CallUnary(context.Background(), connect.NewRequest(wrapperspb.Bytes(tc.data)))
			require.Error(t, err)
			assert.Equal(t, tc.code, connect.CodeOf(err))
		})
	}
}

func TestReconcile_WarningsAreCapped(t *testing.T) {
	var warnings []matcher.Warning
	for i := 0; i < maxWarningsInResponse+5; i++ {
		warnings = append(warnings, matcher.Warning{InvoiceKey: fmt.Sprintf("K%d", i), Structures: []ledger.TaxStructure{ledger.TaxIGST, ledger.TaxOther}})
	}
	report := &service.Report{
		RunID:       uuid.New(),
		ArchiveName: "GST_Reco_a.xlsx",
		Result:      &service.Result{Warnings: warnings},
	}

	got := reportToMap(report)["warnings"].([]any)
	require.Len(t, got, maxWarningsInResponse+1)
	assert.Equal(t, "(and 5 more)", got[maxWarningsInResponse])
}

func TestGetRun(t *testing.T) {
	id := uuid.New()
	stub := &stubReconciler{
		runs: map[uuid.UUID]*repository.Run{
			id: {ID: id, ArchiveName: "GST_Reco_a.xlsx", BooksTotal: 4, BooksMatched: 3, MatchPercent: "75.00"},
		},
	}
	srv := newTestServer(t, stub)
	client := connect.NewClient[wrapperspb.StringValue, structpb.Struct](srv.Client(), srv.URL+GetRunProcedure)

	resp, err := client.CallUnary(context.Background(), connect.NewRequest(wrapperspb.String(id.String())))
	require.NoError(t, err)
	fields := resp.Msg.GetFields()
	assert.Equal(t, "75.00", fields["match_percent"].GetStringValue())
	assert.Equal(t, float64(1), fields["unmatched"].GetNumberValue())
	assert.Equal(t, "/v1/snapshots/GST_Reco_a.xlsx", fields["artifact_url"].GetStringValue())

	_, err = client.CallUnary(context.Background(), connect.NewRequest(wrapperspb.String(uuid.NewString())))
	assert.Equal(t, connect.CodeNotFound, connect.CodeOf(err))

	_, err = client.CallUnary(context.Background(), connect.NewRequest(wrapperspb.String("not-a-uuid")))
	assert.Equal(t, connect.CodeInvalidArgument, connect.CodeOf(err))

	stub.indexOff = true
	_, err = client.CallUnary(context.Background(), connect.NewRequest(wrapperspb.String(id.String())))
	assert.Equal(t, connect.CodeFailedPrecondition, connect.CodeOf(err))
}

func TestDownloads(t *testing.T) {
	id := uuid.New()
	stub := &stubReconciler{
		runs:      map[uuid.UUID]*repository.Run{id: {ID: id, ArchiveName: "GST_Reco_a.xlsx"}},
		snapshots: map[string][]byte{"GST_Reco_a.xlsx": []byte("workbook")},
	}
	srv := newTestServer(t, stub)

	tests := []struct {
		path   string
		status int
	}{
		{"/v1/template", http.StatusOK},
		{"/v1/runs/" + id.String() + "/artifact", http.StatusOK},
		{"/v1/runs/" + uuid.NewString() + "/artifact", http.StatusNotFound},
		{"/v1/runs/nope/artifact", http.StatusBadRequest},
		{"/v1/snapshots/GST_Reco_a.xlsx", http.StatusOK},
		{"/v1/snapshots/GST_Reco_b.xlsx", http.StatusNotFound},
		{"/v1/snapshots/a%5Cb.xlsx", http.StatusBadRequest},
	}

	for _, tc := range tests {
		resp, err := srv.Client().Get(srv.URL + tc.path)
		require.NoError(t, err, tc.path)
		resp.Body.Close()
		assert.Equal(t, tc.status, resp.StatusCode, tc.path)
	}

	resp, err := srv.Client().Get(srv.URL + "/v1/template")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Contains(t, resp.Header.Get("Content-Disposition"), templateDownloadName)
}
