package s3installer

import (
	"encoding/xml"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/gorilla/mux"
)

type stubFilterRule struct {
	Name  string `xml:"Name"`
	Value string `xml:"Value"`
}

type stubFilter struct {
	Rules []stubFilterRule `xml:"S3Key>FilterRule"`
}

type stubTopicConfiguration struct {
	ID     string      `xml:"Id,omitempty"`
	Topic  string      `xml:"Topic"`
	Events []string    `xml:"Event"`
	Filter *stubFilter `xml:"Filter,omitempty"`
}

type stubFunctionConfiguration struct {
	ID            string      `xml:"Id,omitempty"`
	CloudFunction string      `xml:"CloudFunction"`
	Events        []string    `xml:"Event"`
	Filter        *stubFilter `xml:"Filter,omitempty"`
}

type stubQueueConfiguration struct {
	ID     string      `xml:"Id,omitempty"`
	Queue  string      `xml:"Queue"`
	Events []string    `xml:"Event"`
	Filter *stubFilter `xml:"Filter,omitempty"`
}

type stubEventBridgeConfiguration struct{}

type stubNotificationConfiguration struct {
	XMLName     xml.Name                      `xml:"NotificationConfiguration"`
	Xmlns       string                        `xml:"xmlns,attr"`
	Topics      []stubTopicConfiguration      `xml:"TopicConfiguration"`
	Functions   []stubFunctionConfiguration   `xml:"CloudFunctionConfiguration"`
	Queues      []stubQueueConfiguration      `xml:"QueueConfiguration"`
	EventBridge *stubEventBridgeConfiguration `xml:"EventBridgeConfiguration,omitempty"`
}

type stubError struct {
	XMLName   xml.Name `xml:"Error"`
	Code      string   `xml:"Code"`
	Message   string   `xml:"Message"`
	RequestID string   `xml:"RequestId"`
}

type stubBucket struct {
	owner         string
	notifications stubNotificationConfiguration
	objects       map[string][]byte
}

type stubS3Handler struct {
	mu      sync.RWMutex
	t       *testing.T
	router  *mux.Router
	buckets map[string]*stubBucket

	notificationRequests []string
	expectedOwners       []string
}

func NewS3Stub(t *testing.T) (*httptest.Server, *stubS3Handler) {
	t.Helper()
	stub := &stubS3Handler{
		t:       t,
		router:  mux.NewRouter(),
		buckets: make(map[string]*stubBucket),
	}
	stub.setupRoute()
	server := httptest.NewServer(stub)
	t.Cleanup(server.Close)
	return server, stub
}

func newStubS3Client(server *httptest.Server) *s3.Client {
	return s3.NewFromConfig(aws.Config{
		Region:      "us-east-1",
		Credentials: aws.AnonymousCredentials{},
	}, func(o *s3.Options) {
		o.BaseEndpoint = aws.String(server.URL)
		o.UsePathStyle = true
		o.RequestChecksumCalculation = aws.RequestChecksumCalculationWhenRequired
		o.ResponseChecksumValidation = aws.ResponseChecksumValidationWhenRequired
	})
}

func (h *stubS3Handler) setupRoute() {
	h.router.HandleFunc("/{bucket}", h.handleBucket).Methods(http.MethodGet)
	h.router.HandleFunc("/{bucket}/", h.handleBucket).Methods(http.MethodGet)
	h.router.HandleFunc("/{bucket}/{key:.+}", h.handleGetObject).Methods(http.MethodGet)
	h.router.HandleFunc("/{bucket}/{key:.+}", h.handlePutObject).Methods(http.MethodPut)
}

func (h *stubS3Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	h.router.ServeHTTP(w, r)
}

func (h *stubS3Handler) AddBucket(name, owner string, notifications stubNotificationConfiguration) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.buckets[name] = &stubBucket{
		owner:         owner,
		notifications: notifications,
		objects:       make(map[string][]byte),
	}
}

func (h *stubS3Handler) PutObject(bucket, key string, body []byte) {
	h.mu.Lock()
	defer h.mu.Unlock()
	b, ok := h.buckets[bucket]
	if !ok {
		h.t.Fatalf("bucket %s not found", bucket)
	}
	b.objects[key] = body
}

func (h *stubS3Handler) Object(bucket, key string) ([]byte, bool) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	b, ok := h.buckets[bucket]
	if !ok {
		return nil, false
	}
	body, ok := b.objects[key]
	return body, ok
}

func (h *stubS3Handler) NotificationRequests() []string {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return append([]string{}, h.notificationRequests...)
}

func (h *stubS3Handler) ExpectedOwners() []string {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return append([]string{}, h.expectedOwners...)
}

func (h *stubS3Handler) lookup(w http.ResponseWriter, r *http.Request) (*stubBucket, bool) {
	name := mux.Vars(r)["bucket"]
	h.mu.RLock()
	b, ok := h.buckets[name]
	h.mu.RUnlock()
	if !ok {
		h.writeError(w, http.StatusNotFound, "NoSuchBucket", "The specified bucket does not exist")
		return nil, false
	}
	if expected := r.Header.Get("X-Amz-Expected-Bucket-Owner"); expected != "" && expected != b.owner {
		h.writeError(w, http.StatusForbidden, "AccessDenied", "Access Denied")
		return nil, false
	}
	return b, true
}

func (h *stubS3Handler) handleBucket(w http.ResponseWriter, r *http.Request) {
	if !r.URL.Query().Has("notification") {
		http.Error(w, "unsupported bucket operation", http.StatusNotImplemented)
		return
	}
	h.mu.Lock()
	h.notificationRequests = append(h.notificationRequests, mux.Vars(r)["bucket"])
	h.expectedOwners = append(h.expectedOwners, r.Header.Get("X-Amz-Expected-Bucket-Owner"))
	h.mu.Unlock()
	b, ok := h.lookup(w, r)
	if !ok {
		return
	}
	notifications := b.notifications
	notifications.Xmlns = "http://s3.amazonaws.com/doc/2006-03-01/"
	h.writeXML(w, http.StatusOK, notifications)
}

func (h *stubS3Handler) handleGetObject(w http.ResponseWriter, r *http.Request) {
	b, ok := h.lookup(w, r)
	if !ok {
		return
	}
	key := mux.Vars(r)["key"]
	h.mu.RLock()
	body, ok := b.objects[key]
	h.mu.RUnlock()
	if !ok {
		h.writeError(w, http.StatusNotFound, "NoSuchKey", "The specified key does not exist.")
		return
	}
	w.Header().Set("Content-Type", "application/octet-stream")
	w.WriteHeader(http.StatusOK)
	w.Write(body)
}

func (h *stubS3Handler) handlePutObject(w http.ResponseWriter, r *http.Request) {
	b, ok := h.lookup(w, r)
	if !ok {
		return
	}
	body, err := io.ReadAll(r.Body)
	if err != nil {
		h.writeError(w, http.StatusBadRequest, "IncompleteBody", err.Error())
		return
	}
	h.mu.Lock()
	b.objects[mux.Vars(r)["key"]] = body
	h.mu.Unlock()
	w.Header().Set("ETag", `"stub"`)
	w.WriteHeader(http.StatusOK)
}

func (h *stubS3Handler) writeError(w http.ResponseWriter, status int, code, message string) {
	h.writeXML(w, status, stubError{Code: code, Message: message, RequestID: "stub"})
}

func (h *stubS3Handler) writeXML(w http.ResponseWriter, status int, v any) {
	bs, err := xml.Marshal(v)
	if err != nil {
		h.t.Error("failed to marshal xml", err)
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/xml")
	w.WriteHeader(status)
	w.Write([]byte(xml.Header))
	w.Write(bs)
}

func prefixFilter(prefix string) *stubFilter {
	return &stubFilter{Rules: []stubFilterRule{{Name: "prefix", Value: prefix}}}
}
