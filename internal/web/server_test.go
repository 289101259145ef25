package web

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/securecookie"
	"github.com/stretchr/testify/suite"

	"github.com/srikanta2006/smart-parking/internal/ratelimit"
	"github.com/srikanta2006/smart-parking/internal/receipt"
	"github.com/srikanta2006/smart-parking/internal/slots"
)

type failingStore struct{ err error }

func (f failingStore) List(context.Context) ([]slots.Slot, error) { return nil, f.err }
func (f failingStore) Reserve(context.Context, int, time.Time) (slots.Slot, error) {
	return slots.Slot{}, f.err
}
func (f failingStore) Ping(context.Context) error { return f.err }

type ServerSuite struct {
	suite.Suite
	store   *slots.MemoryStore
	handler http.Handler
}

func (s *ServerSuite) SetupTest() {
	s.store = slots.NewMemoryStore(slots.Slot{ID: 5})
	s.handler = s.newServer(s.store).Routes()
}

func (s *ServerSuite) newServer(store slots.Store) *Server {
	logger := log.New(io.Discard, "", 0)
	return &Server{
		Slots:  slots.NewService(store, slots.WithLogger(logger), slots.WithTimeout(time.Second)),
		Logger: logger,
	}
}

func (s *ServerSuite) do(h http.Handler, method, path string, cookies ...*http.Cookie) *httptest.ResponseRecorder {
	r := httptest.NewRequest(method, path, nil)
	r.RemoteAddr = "192.0.2.1:1000"
	for _, c := range cookies {
		r.AddCookie(c)
	}
	w := httptest.NewRecorder()
	h.ServeHTTP(w, r)
	return w
}

func (s *ServerSuite) decode(w *httptest.ResponseRecorder, v any) {
	s.Equal("application/json", w.Header().Get("Content-Type"))
	s.Require().NoError(json.Unmarshal(w.Body.Bytes(), v))
}

func (s *ServerSuite) TestEndToEndScenario() {
	w := s.do(s.handler, http.MethodGet, "/parking-slots")
	s.Equal(http.StatusOK, w.Code)
	s.JSONEq(`[{"id":5,"occupied":false}]`, w.Body.String())

	w = s.do(s.handler, http.MethodPost, "/reserve-slot/5")
	s.Equal(http.StatusOK, w.Code)
	s.JSONEq(`{"message":"Slot reserved successfully"}`, w.Body.String())
	s.Regexp(`^PK-\d{6}$`, w.Header().Get("X-Confirmation-Number"))

	w = s.do(s.handler, http.MethodPost, "/reserve-slot/5")
	s.Equal(http.StatusBadRequest, w.Code)
	s.JSONEq(`{"error":"Slot not available"}`, w.Body.String())

	w = s.do(s.handler, http.MethodGet, "/parking-slots")
	s.JSONEq(`[{"id":5,"occupied":true}]`, w.Body.String())
}

func (s *ServerSuite) TestListFieldTypes() {
	s.Require().NoError(s.store.Seed(context.Background(), []slots.Slot{{ID: 6, Occupied: true}}))

	var got []map[string]any
	s.decode(s.do(s.handler, http.MethodGet, "/parking-slots"), &got)
	s.Require().Len(got, 2)
	for _, slot := range got {
		s.Len(slot, 2)
		s.IsType(float64(0), slot["id"])
		s.IsType(true, slot["occupied"])
	}
}

func (s *ServerSuite) TestListEmptyStoreIsEmptyArray() {
	h := s.newServer(slots.NewMemoryStore()).Routes()

	w := s.do(h, http.MethodGet, "/parking-slots")
	s.Equal(http.StatusOK, w.Code)
	s.JSONEq(`[]`, w.Body.String())
}

func (s *ServerSuite) TestMissingSlotMatchesOccupiedResponse() {
	missing := s.do(s.handler, http.MethodPost, "/reserve-slot/404")
	s.Equal(http.StatusBadRequest, missing.Code)
	s.JSONEq(`{"error":"Slot not available"}`, missing.Body.String())

	_ = s.do(s.handler, http.MethodPost, "/reserve-slot/5")
	occupied := s.do(s.handler, http.MethodPost, "/reserve-slot/5")
	s.Equal(missing.Body.String(), occupied.Body.String())
}

func (s *ServerSuite) TestLargeSlotIDWithoutRecordIsNotAvailable() {
	w := s.do(s.handler, http.MethodPost, "/reserve-slot/3000000000")
	s.Equal(http.StatusBadRequest, w.Code)
	s.JSONEq(`{"error":"Slot not available"}`, w.Body.String())
}

func (s *ServerSuite) TestInvalidSlotIDIsNotFound() {
	for _, path := range []string{"/reserve-slot/abc", "/reserve-slot/-1", "/reserve-slot/+5", "/reserve-slot/99999999999999999999999"} {
		w := s.do(s.handler, http.MethodPost, path)
		s.Equal(http.StatusNotFound, w.Code, path)
		s.JSONEq(`{"error":"Not found"}`, w.Body.String(), path)
	}
}

func (s *ServerSuite) TestWrongMethodIsJSON() {
	w := s.do(s.handler, http.MethodGet, "/reserve-slot/5")
	s.Equal(http.StatusMethodNotAllowed, w.Code)
	s.JSONEq(`{"error":"Method not allowed"}`, w.Body.String())
	s.Equal("application/json", w.Header().Get("Content-Type"))
	s.Contains(w.Header().Get("Allow"), http.MethodPost)
}

func (s *ServerSuite) TestUnknownPathIsJSON() {
	w := s.do(s.handler, http.MethodGet, "/no-such-route")
	s.Equal(http.StatusNotFound, w.Code)
	s.JSONEq(`{"error":"Not found"}`, w.Body.String())
	s.Equal("application/json", w.Header().Get("Content-Type"))
}

func (s *ServerSuite) TestStoreFailureIsServiceUnavailable() {
	h := s.newServer(failingStore{err: errors.New("connection refused")}).Routes()

	w := s.do(h, http.MethodGet, "/parking-slots")
	s.Equal(http.StatusServiceUnavailable, w.Code)
	s.JSONEq(`{"error":"Slot store unavailable"}`, w.Body.String())

	w = s.do(h, http.MethodPost, "/reserve-slot/5")
	s.Equal(http.StatusServiceUnavailable, w.Code)

	w = s.do(h, http.MethodGet, "/healthz")
	s.Equal(http.StatusServiceUnavailable, w.Code)
	s.JSONEq(`{"status":"unavailable"}`, w.Body.String())
}

func (s *ServerSuite) TestHealthz() {
	w := s.do(s.handler, http.MethodGet, "/healthz")
	s.Equal(http.StatusOK, w.Code)
	s.JSONEq(`{"status":"ok"}`, w.Body.String())
	s.NotEmpty(w.Header().Get("X-Request-ID"))
}

func (s *ServerSuite) TestCORSPreflight() {
	r := httptest.NewRequest(http.MethodOptions, "/reserve-slot/5", nil)
	r.Header.Set("Origin", "http://localhost:3000")
	r.Header.Set("Access-Control-Request-Method", http.MethodPost)
	w := httptest.NewRecorder()
	s.handler.ServeHTTP(w, r)

	s.Less(w.Code, 300)
	s.NotEmpty(w.Header().Get("Access-Control-Allow-Origin"))
}

func (s *ServerSuite) TestRateLimitedClientGets429() {
	srv := s.newServer(s.store)
	srv.Limiter = ratelimit.NewStore(0.02, 1)
	h := srv.Routes()

	s.Equal(http.StatusOK, s.do(h, http.MethodGet, "/parking-slots").Code)

	w := s.do(h, http.MethodGet, "/parking-slots")
	s.Equal(http.StatusTooManyRequests, w.Code)
	s.JSONEq(`{"error":"Too many requests"}`, w.Body.String())
	s.NotEmpty(w.Header().Get("Retry-After"))
}

func (s *ServerSuite) TestReceiptRoundTrip() {
	srv := s.newServer(s.store)
	srv.Receipts = receipt.NewCodec(securecookie.GenerateRandomKey(32), securecookie.GenerateRandomKey(32))
	h := srv.Routes()

	s.Equal(http.StatusNotFound, s.do(h, http.MethodGet, "/my-reservation").Code)

	w := s.do(h, http.MethodPost, "/reserve-slot/5")
	s.Require().Equal(http.StatusOK, w.Code)
	cookies := w.Result().Cookies()
	s.Require().Len(cookies, 1)

	var rc receipt.Receipt
	got := s.do(h, http.MethodGet, "/my-reservation", cookies[0])
	s.Equal(http.StatusOK, got.Code)
	s.decode(got, &rc)
	s.Equal(5, rc.SlotID)
	s.Equal(w.Header().Get("X-Confirmation-Number"), rc.Confirmation)
}

func (s *ServerSuite) TestMyReservationDisabledWithoutKeys() {
	s.Equal(http.StatusNotFound, s.do(s.handler, http.MethodGet, "/my-reservation").Code)
}

func (s *ServerSuite) TestConcurrentReservationsOverHTTP() {
	ts := httptest.NewServer(s.handler)
	defer ts.Close()

	const n = 32
	codes := make(chan int, n)
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			resp, err := http.Post(ts.URL+"/reserve-slot/5", "application/json", nil)
			if err != nil {
				codes <- 0
				return
			}
			_ = resp.Body.Close()
			codes <- resp.StatusCode
		}()
	}
	wg.Wait()
	close(codes)

	counts := map[int]int{}
	for c := range codes {
		counts[c]++
	}
	s.Equal(1, counts[http.StatusOK])
	s.Equal(n-1, counts[http.StatusBadRequest])
}

func TestServerSuite(t *testing.T) {
	suite.Run(t, new(ServerSuite))
}
