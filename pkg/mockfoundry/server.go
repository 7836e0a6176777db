package mockfoundry

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
)

// Call records a request made to the mock service.
type Call struct {
	Method string
	Path   string
}

// Upload records a file upload into a dataset transaction.
type Upload struct {
	DatasetRID string
	TxnID      string
	FilePath   string
	Bytes      []byte
}

// StreamRecord records one JSON record published through stream-proxy.
type StreamRecord struct {
	StreamRID string
	Branch    string
	Record    map[string]any
}

// Server implements the dataset transaction and stream-proxy surface of Foundry.
type Server struct {
	// uploadDir, when set, mirrors committed files to disk for local inspection.
	uploadDir string

	mu      sync.Mutex
	calls   []Call
	uploads []Upload
	records []StreamRecord

	expectedAuthorization string

	nextTxn int
	txns    map[string]*txnState
	order   []string

	// heads stores committed file contents per dataset RID and file path.
	heads map[string]map[string][]byte
}

type txnState struct {
	id         string
	datasetRID string
	branch     string
	txnType    string
	status     string
	files      map[string][]byte
}

// New constructs a mock server. uploadDir may be empty.
func New(uploadDir string) *Server {
	return &Server{
		uploadDir: uploadDir,
		nextTxn:   1,
		txns:      make(map[string]*txnState),
		heads:     make(map[string]map[string][]byte),
	}
}

// RequireBearerToken enforces that requests include an Authorization header matching the token.
// If token is empty, authorization is not enforced.
func (s *Server) RequireBearerToken(token string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	token = strings.TrimSpace(token)
	if token == "" {
		s.expectedAuthorization = ""
		return
	}
	s.expectedAuthorization = "Bearer " + token
}

// OpenTransaction pre-opens a transaction, as a Foundry build does for its output dataset.
func (s *Server) OpenTransaction(datasetRID, branch string) string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.openLocked(datasetRID, branch, "SNAPSHOT")
}

// Handler returns an http.Handler that serves the mock API.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/api/v2/datasets/", s.handleDatasets)
	mux.HandleFunc("/stream-proxy/api/streams/", s.handleStreams)
	return mux
}

// Calls returns a snapshot of calls made to the server.
func (s *Server) Calls() []Call {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Call, len(s.calls))
	copy(out, s.calls)
	return out
}

// Uploads returns a snapshot of uploads made to the server.
func (s *Server) Uploads() []Upload {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Upload, len(s.uploads))
	copy(out, s.uploads)
	return out
}

// StreamRecords returns a snapshot of published stream records.
func (s *Server) StreamRecords() []StreamRecord {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]StreamRecord, len(s.records))
	copy(out, s.records)
	return out
}

// Committed returns the committed contents of a dataset file.
func (s *Server) Committed(datasetRID, filePath string) ([]byte, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	b, ok := s.heads[datasetRID][filePath]
	return b, ok
}

func (s *Server) recordCall(r *http.Request) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls = append(s.calls, Call{Method: r.Method, Path: r.URL.Path})
}

func (s *Server) authorize(w http.ResponseWriter, r *http.Request) bool {
	s.mu.Lock()
	expected := s.expectedAuthorization
	s.mu.Unlock()

	if expected == "" || r.Header.Get("Authorization") == expected {
		return true
	}
	writeConjureError(w, http.StatusUnauthorized, "PERMISSION_DENIED", "Default:PermissionDenied")
	return false
}

func (s *Server) handleDatasets(w http.ResponseWriter, r *http.Request) {
	s.recordCall(r)
	if !s.authorize(w, r) {
		return
	}

	// {rid}/transactions
	// {rid}/transactions/{txn}/commit
	// {rid}/files/{path...}/upload
	rest := strings.TrimPrefix(r.URL.EscapedPath(), "/api/v2/datasets/")
	parts := strings.Split(rest, "/")
	if len(parts) < 2 {
		http.NotFound(w, r)
		return
	}
	rid := unescape(parts[0])
	if !isSafeToken(rid) {
		http.Error(w, "invalid dataset rid", http.StatusBadRequest)
		return
	}

	switch {
	case len(parts) == 2 && parts[1] == "transactions":
		switch r.Method {
		case http.MethodPost:
			s.handleCreateTransaction(w, r, rid)
		case http.MethodGet:
			s.handleListTransactions(w, r, rid)
		default:
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		}
	case len(parts) == 4 && parts[1] == "transactions" && parts[3] == "commit":
		if r.Method != http.MethodPost {
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}
		s.handleCommit(w, rid, unescape(parts[2]))
	case len(parts) >= 4 && parts[1] == "files" && parts[len(parts)-1] == "upload":
		if r.Method != http.MethodPost {
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}
		segs := parts[2 : len(parts)-1]
		for i := range segs {
			segs[i] = unescape(segs[i])
		}
		filePath := strings.Join(segs, "/")
		if !isSafeFilePath(filePath) {
			http.Error(w, "invalid file path", http.StatusBadRequest)
			return
		}
		s.handleUpload(w, r, rid, r.URL.Query().Get("transactionRid"), filePath)
	default:
		http.NotFound(w, r)
	}
}

type createTxnReq struct {
	TransactionType string `json:"transactionType"`
}

type transactionJSON struct {
	RID             string `json:"rid"`
	TransactionType string `json:"transactionType"`
	Status          string `json:"status"`
	CreatedTime     string `json:"createdTime"`
}

func (s *Server) openLocked(datasetRID, branch, txnType string) string {
	id := fmt.Sprintf("ri.foundry.main.transaction.%06d", s.nextTxn)
	s.nextTxn++
	if branch == "" {
		branch = "master"
	}
	s.txns[id] = &txnState{
		id:         id,
		datasetRID: datasetRID,
		branch:     branch,
		txnType:    txnType,
		status:     "OPEN",
		files:      make(map[string][]byte),
	}
	s.order = append(s.order, id)
	return id
}

func (s *Server) handleCreateTransaction(w http.ResponseWriter, r *http.Request, datasetRID string) {
	var req createTxnReq
	if b, _ := io.ReadAll(r.Body); len(b) > 0 {
		if err := json.Unmarshal(b, &req); err != nil {
			http.Error(w, "invalid json body", http.StatusBadRequest)
			return
		}
	}
	if req.TransactionType == "" {
		req.TransactionType = "APPEND"
	}

	s.mu.Lock()
	for _, t := range s.txns {
		if t.datasetRID == datasetRID && t.status == "OPEN" {
			s.mu.Unlock()
			writeConjureError(w, http.StatusConflict, "CONFLICT", "Datasets:OpenTransactionAlreadyExists")
			return
		}
	}
	id := s.openLocked(datasetRID, r.URL.Query().Get("branchName"), req.TransactionType)
	s.mu.Unlock()

	writeJSON(w, transactionJSON{RID: id, TransactionType: req.TransactionType, Status: "OPEN"})
}

func (s *Server) handleListTransactions(w http.ResponseWriter, r *http.Request, datasetRID string) {
	if r.URL.Query().Get("preview") != "true" {
		writeConjureError(w, http.StatusBadRequest, "INVALID_ARGUMENT", "Core:ApiIsInPreview")
		return
	}

	s.mu.Lock()
	var data []transactionJSON
	// Newest first.
	for i := len(s.order) - 1; i >= 0; i-- {
		t := s.txns[s.order[i]]
		if t.datasetRID != datasetRID {
			continue
		}
		data = append(data, transactionJSON{RID: t.id, TransactionType: t.txnType, Status: t.status})
	}
	s.mu.Unlock()

	writeJSON(w, map[string]any{"data": data})
}

func (s *Server) handleUpload(w http.ResponseWriter, r *http.Request, datasetRID, txnID, filePath string) {
	b, err := io.ReadAll(r.Body)
	if err != nil {
		http.Error(w, "read body", http.StatusBadRequest)
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	txn, ok := s.txns[txnID]
	if !ok || txn.datasetRID != datasetRID {
		writeConjureError(w, http.StatusNotFound, "NOT_FOUND", "Datasets:TransactionNotFound")
		return
	}
	if txn.status != "OPEN" {
		writeConjureError(w, http.StatusConflict, "CONFLICT", "Datasets:TransactionNotOpen")
		return
	}
	txn.files[filePath] = b
	s.uploads = append(s.uploads, Upload{DatasetRID: datasetRID, TxnID: txnID, FilePath: filePath, Bytes: b})

	writeJSON(w, map[string]string{"path": filePath, "transactionRid": txnID})
}

func (s *Server) handleCommit(w http.ResponseWriter, datasetRID, txnID string) {
	s.mu.Lock()
	txn, ok := s.txns[txnID]
	if !ok || txn.datasetRID != datasetRID {
		s.mu.Unlock()
		writeConjureError(w, http.StatusNotFound, "NOT_FOUND", "Datasets:TransactionNotFound")
		return
	}
	if txn.status != "OPEN" {
		s.mu.Unlock()
		writeConjureError(w, http.StatusConflict, "CONFLICT", "Datasets:TransactionNotOpen")
		return
	}
	txn.status = "COMMITTED"
	head := s.heads[datasetRID]
	if head == nil || txn.txnType == "SNAPSHOT" {
		head = make(map[string][]byte)
	}
	for p, b := range txn.files {
		head[p] = b
	}
	s.heads[datasetRID] = head
	files := make(map[string][]byte, len(head))
	for p, b := range head {
		files[p] = b
	}
	s.mu.Unlock()

	if err := s.mirror(datasetRID, files); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	writeJSON(w, transactionJSON{RID: txnID, TransactionType: txn.txnType, Status: "COMMITTED"})
}

func (s *Server) mirror(datasetRID string, files map[string][]byte) error {
	if s.uploadDir == "" {
		return nil
	}
	paths := make([]string, 0, len(files))
	for p := range files {
		paths = append(paths, p)
	}
	sort.Strings(paths)
	for _, p := range paths {
		dst := filepath.Join(s.uploadDir, datasetRID, filepath.FromSlash(p))
		if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
			return fmt.Errorf("mkdir committed dir: %w", err)
		}
		if err := os.WriteFile(dst, files[p], 0o644); err != nil {
			return fmt.Errorf("write committed file: %w", err)
		}
	}
	return nil
}

func (s *Server) handleStreams(w http.ResponseWriter, r *http.Request) {
	s.recordCall(r)
	if !s.authorize(w, r) {
		return
	}

	// {rid}/branches/{branch}/jsonRecord
	rest := strings.TrimPrefix(r.URL.EscapedPath(), "/stream-proxy/api/streams/")
	parts := strings.Split(rest, "/")
	if len(parts) != 4 || parts[1] != "branches" || parts[3] != "jsonRecord" {
		http.NotFound(w, r)
		return
	}
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var rec map[string]any
	if err := json.NewDecoder(io.LimitReader(r.Body, 1<<20)).Decode(&rec); err != nil {
		http.Error(w, "invalid json body", http.StatusBadRequest)
		return
	}

	s.mu.Lock()
	s.records = append(s.records, StreamRecord{StreamRID: unescape(parts[0]), Branch: unescape(parts[2]), Record: rec})
	s.mu.Unlock()

	writeJSON(w, map[string]string{"status": "ok"})
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(v)
}

func writeConjureError(w http.ResponseWriter, code int, errorCode, errorName string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(map[string]string{
		"errorCode":       errorCode,
		"errorName":       errorName,
		"errorInstanceId": "00000000-0000-0000-0000-000000000000",
	})
}

func unescape(s string) string {
	if u, err := url.PathUnescape(s); err == nil {
		return u
	}
	return s
}

func isSafeToken(s string) bool {
	return s != "" && !strings.ContainsAny(s, "/\\")
}

func isSafeFilePath(p string) bool {
	if p == "" || strings.HasPrefix(p, "/") || strings.Contains(p, "\\") {
		return false
	}
	for _, part := range strings.Split(p, "/") {
		if part == "" || part == "." || part == ".." {
			return false
		}
	}
	return true
}
