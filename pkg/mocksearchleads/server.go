package mocksearchleads

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"sync"
)

// Call records a request made to the mock service.
type Call struct {
	Method   string
	Path     string
	RecordID string
}

// Submission records one accepted submit request body.
type Submission struct {
	ApolloLink string `json:"apolloLink"`
	NoOfLeads  int    `json:"noOfLeads"`
	FileName   string `json:"fileName"`
}

// Reply is one scripted status response.
type Reply struct {
	StatusCode int
	Body       string
}

// Pending returns an in-progress status reply with no records.
func Pending() Reply { return Status("pending", 0) }

// Status returns a single-object status reply.
func Status(token string, records int) Reply {
	return Reply{Body: fmt.Sprintf(`{"enrichment_status":%q,"enriched_records":%d,"credits_involved":%d,"file_name":"leads.csv","spreadsheet_url":"https://sheets.example/leads"}`, token, records, records)}
}

// StatusArray returns the same body as Status wrapped in a one-element array.
func StatusArray(token string, records int) Reply {
	r := Status(token, records)
	r.Body = "[" + r.Body + "]"
	return r
}

// ParseScript builds replies from a comma list of steps. A step is a status token with an
// optional record count ("completed:2500"), or an HTTP status code ("503") for an error reply.
func ParseScript(script string) ([]Reply, error) {
	var out []Reply
	for _, step := range strings.Split(script, ",") {
		step = strings.TrimSpace(step)
		if step == "" {
			continue
		}
		if code, err := strconv.Atoi(step); err == nil {
			if code < 100 || code > 599 {
				return nil, fmt.Errorf("invalid status code %d in script", code)
			}
			out = append(out, Reply{StatusCode: code, Body: fmt.Sprintf(`{"error":%q}`, http.StatusText(code))})
			continue
		}
		token, countStr, hasCount := strings.Cut(step, ":")
		records := 0
		if hasCount {
			n, err := strconv.Atoi(strings.TrimSpace(countStr))
			if err != nil || n < 0 {
				return nil, fmt.Errorf("invalid record count in step %q", step)
			}
			records = n
		}
		out = append(out, Status(strings.TrimSpace(token), records))
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("script has no steps")
	}
	return out, nil
}

// Server implements the submit + status surface of the enrichment API.
type Server struct {
	mu sync.Mutex

	calls       []Call
	submissions []Submission

	expectedAuthorization string

	// submitBody is returned verbatim for accepted submissions.
	submitBody string
	recordID   string
	replies    []Reply
	polls      int
}

// New constructs a mock that issues recordID and then answers status polls from replies.
// The last reply repeats once the script is exhausted.
func New(recordID string, replies ...Reply) *Server {
	s := &Server{recordID: recordID, replies: replies}
	s.submitBody = fmt.Sprintf(`{"record_id":%q}`, recordID)
	return s
}

// SetSubmitBody overrides the submit response body (for malformed-acknowledgment tests).
func (s *Server) SetSubmitBody(body string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.submitBody = body
}

// RequireBearerToken enforces that requests carry "Authorization: Bearer <token>".
// An empty token disables the check.
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

// Handler returns an http.Handler that serves the mock API.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/submit", s.handleSubmit)
	mux.HandleFunc("/status", s.handleStatus)
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

// Submissions returns a snapshot of accepted submit bodies.
func (s *Server) Submissions() []Submission {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Submission, len(s.submissions))
	copy(out, s.submissions)
	return out
}

// Polls returns how many status requests were answered.
func (s *Server) Polls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.polls
}

func (s *Server) recordCall(r *http.Request, recordID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls = append(s.calls, Call{Method: r.Method, Path: r.URL.Path, RecordID: recordID})
}

func (s *Server) authorize(w http.ResponseWriter, r *http.Request) bool {
	s.mu.Lock()
	expected := s.expectedAuthorization
	s.mu.Unlock()

	if expected == "" || r.Header.Get("Authorization") == expected {
		return true
	}
	writeError(w, http.StatusUnauthorized, "unauthorized")
	return false
}

func (s *Server) handleSubmit(w http.ResponseWriter, r *http.Request) {
	s.recordCall(r, "")
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	if !s.authorize(w, r) {
		return
	}

	var sub Submission
	if err := json.NewDecoder(io.LimitReader(r.Body, 1<<20)).Decode(&sub); err != nil {
		writeError(w, http.StatusBadRequest, "invalid json body")
		return
	}

	s.mu.Lock()
	s.submissions = append(s.submissions, sub)
	body := s.submitBody
	s.mu.Unlock()

	w.Header().Set("Content-Type", "application/json")
	_, _ = io.WriteString(w, body)
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		s.recordCall(r, "")
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	var req struct {
		RecordID string `json:"record_id"`
	}
	if err := json.NewDecoder(io.LimitReader(r.Body, 1<<20)).Decode(&req); err != nil {
		s.recordCall(r, "")
		writeError(w, http.StatusBadRequest, "invalid json body")
		return
	}
	s.recordCall(r, req.RecordID)
	if !s.authorize(w, r) {
		return
	}

	s.mu.Lock()
	if req.RecordID != s.recordID {
		s.mu.Unlock()
		writeError(w, http.StatusNotFound, "unknown record_id")
		return
	}
	reply := Reply{StatusCode: http.StatusOK}
	if len(s.replies) > 0 {
		idx := s.polls
		if idx >= len(s.replies) {
			idx = len(s.replies) - 1
		}
		reply = s.replies[idx]
	}
	s.polls++
	s.mu.Unlock()

	code := reply.StatusCode
	if code == 0 {
		code = http.StatusOK
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_, _ = io.WriteString(w, reply.Body)
}

func writeError(w http.ResponseWriter, code int, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(map[string]string{"error": msg})
}
