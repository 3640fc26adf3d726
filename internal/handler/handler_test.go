package handler_test

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/angeloszaimis/edge-router/internal/assets"
	"github.com/angeloszaimis/edge-router/internal/correlator"
	"github.com/angeloszaimis/edge-router/internal/forward"
	"github.com/angeloszaimis/edge-router/internal/handler"
	"github.com/angeloszaimis/edge-router/internal/metrics"
	"github.com/angeloszaimis/edge-router/pkg/logger"
)

type forwardCall struct {
	method string
	path   string
	mode   forward.Mode
}

// fakeForwarder stands in for the edge_app backend.
type fakeForwarder struct {
	mu       sync.Mutex
	forwards []forwardCall
	upgrades []string
	err      error
}

func (f *fakeForwarder) Forward(w http.ResponseWriter, r *http.Request, mode forward.Mode) error {
	f.mu.Lock()
	f.forwards = append(f.forwards, forwardCall{method: r.Method, path: r.URL.Path, mode: mode})
	f.mu.Unlock()

	if f.err != nil {
		return f.err
	}

	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("X-Backend", "edge_app")
	w.WriteHeader(http.StatusCreated)
	fmt.Fprintf(w, `{"method":%q,"path":%q}`, r.Method, r.URL.Path)
	return nil
}

func (f *fakeForwarder) Upgrade(w http.ResponseWriter, r *http.Request) error {
	f.mu.Lock()
	f.upgrades = append(f.upgrades, r.URL.RequestURI())
	f.mu.Unlock()

	if f.err != nil {
		return f.err
	}

	w.WriteHeader(http.StatusSwitchingProtocols)
	return nil
}

func (f *fakeForwarder) forwardCalls() []forwardCall {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]forwardCall(nil), f.forwards...)
}

func (f *fakeForwarder) upgradeCalls() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.upgrades...)
}

func records(buf *bytes.Buffer) []map[string]any {
	var out []map[string]any
	for _, line := range strings.Split(strings.TrimSpace(buf.String()), "\n") {
		if line == "" {
			continue
		}
		var rec map[string]any
		Expect(json.Unmarshal([]byte(line), &rec)).To(Succeed())
		out = append(out, rec)
	}
	return out
}

var _ = Describe("EdgeHandler", func() {
	var (
		h         *handler.EdgeHandler
		table     *assets.Table
		fwd       *fakeForwarder
		sink      *bytes.Buffer
		log       *slog.Logger
		collector *metrics.Collector
		ctx       context.Context
		cancel    context.CancelFunc
	)

	BeforeEach(func() {
		var err error
		table, err = assets.LoadEmbedded()
		Expect(err).NotTo(HaveOccurred())

		log = slog.New(slog.NewTextHandler(io.Discard, nil))
		sink = &bytes.Buffer{}
		fwd = &fakeForwarder{}

		ctx, cancel = context.WithCancel(context.Background())
		collector = metrics.NewCollector(100, log, nil)
		collector.Start(ctx)

		corr := correlator.New(logger.NewChannel(sink, "info"), "cache-test-01")
		h = handler.NewEdgeHandler(log, table, fwd, corr, collector)
	})

	AfterEach(func() {
		cancel()
	})

	serve := func(req *http.Request) *httptest.ResponseRecorder {
		w := httptest.NewRecorder()
		h.ServeHTTP(w, req)
		return w
	}

	Describe("asset serving", func() {
		DescribeTable("known paths",
			func(path, contentType string) {
				w := serve(httptest.NewRequest(http.MethodGet, path, nil))

				entry, ok := table.Lookup(path)
				Expect(ok).To(BeTrue())
				Expect(w.Code).To(Equal(http.StatusOK))
				Expect(w.Header().Get("Content-Type")).To(Equal(contentType))
				Expect(w.Body.Bytes()).To(Equal(entry.Payload))
				Expect(sink.Len()).To(BeZero())
			},
			Entry("script", "/main.js", "application/javascript"),
			Entry("stylesheet", "/main.css", "text/css"),
			Entry("robots", "/robots.txt", "text/plain"),
			Entry("demo manifest", "/.well-known/fastly/demo-manifest", "text/plain"),
			Entry("binary image", "/images/screenshot.png", "image/png"),
		)

		It("should serve index.html for unknown paths and emit a record", func() {
			w := serve(httptest.NewRequest(http.MethodGet, "/unknown/path?session=abc", nil))

			Expect(w.Code).To(Equal(http.StatusOK))
			Expect(w.Header().Get("Content-Type")).To(Equal("text/html"))
			Expect(w.Body.Bytes()).To(Equal(table.Default().Payload))

			recs := records(sink)
			Expect(recs).To(HaveLen(1))
			Expect(recs[0]).To(HaveKeyWithValue("msg", "Sending index.html"))
			Expect(recs[0]).To(HaveKeyWithValue("session", "abc"))
			Expect(recs[0]).To(HaveKeyWithValue("context", "edge"))
			Expect(recs[0]).To(HaveKeyWithValue("source", "cache-test-01"))
			Expect(recs[0]["logID"]).To(MatchRegexp(`^[0-9a-f]{8}$`))
		})

		It("should serve index.html for the root path", func() {
			w := serve(httptest.NewRequest(http.MethodGet, "/", nil))

			Expect(w.Code).To(Equal(http.StatusOK))
			Expect(w.Body.Bytes()).To(Equal(table.Default().Payload))

			recs := records(sink)
			Expect(recs).To(HaveLen(1))
			Expect(recs[0]).To(HaveKeyWithValue("session", BeNil()))
		})

		It("should answer HEAD with headers only", func() {
			w := serve(httptest.NewRequest(http.MethodHead, "/main.css", nil))

			Expect(w.Code).To(Equal(http.StatusOK))
			Expect(w.Header().Get("Content-Type")).To(Equal("text/css"))
			Expect(w.Body.Len()).To(BeZero())
		})

		It("should never contact the backend", func() {
			serve(httptest.NewRequest(http.MethodGet, "/main.js", nil))
			serve(httptest.NewRequest(http.MethodGet, "/nope", nil))

			Expect(fwd.forwardCalls()).To(BeEmpty())
			Expect(fwd.upgradeCalls()).To(BeEmpty())
		})
	})

	Describe("method gate", func() {
		DescribeTable("non GET/HEAD methods outside /api/",
			func(method, path string) {
				w := serve(httptest.NewRequest(method, path, nil))

				Expect(w.Code).To(Equal(http.StatusMethodNotAllowed))
				Expect(w.Header().Get("Allow")).To(Equal("GET, HEAD"))
				Expect(w.Header().Get("Content-Type")).To(Equal("text/plain; charset=utf-8"))
				Expect(w.Body.String()).To(Equal("This method is not allowed\n"))
				Expect(fwd.forwardCalls()).To(BeEmpty())
				Expect(sink.Len()).To(BeZero())
			},
			Entry("DELETE asset", http.MethodDelete, "/main.css"),
			Entry("POST root", http.MethodPost, "/"),
			Entry("PUT unknown", http.MethodPut, "/unknown"),
			Entry("OPTIONS", http.MethodOptions, "/robots.txt"),
			Entry("lowercase get", "get", "/main.js"),
			Entry("API without trailing slash", http.MethodPost, "/api"),
			Entry("API with an encoded slash", http.MethodPost, "/api%2Fwidgets"),
		)
	})

	Describe("percent-encoded paths", func() {
		It("should not proxy an encoded /api%2F path", func() {
			w := serve(httptest.NewRequest(http.MethodGet, "/api%2Fwidgets", nil))

			Expect(fwd.forwardCalls()).To(BeEmpty())
			Expect(w.Code).To(Equal(http.StatusOK))
			Expect(w.Body.Bytes()).To(Equal(table.Default().Payload))
		})

		It("should not match an asset through an encoded name", func() {
			w := serve(httptest.NewRequest(http.MethodGet, "/main%2Ejs", nil))

			Expect(w.Code).To(Equal(http.StatusOK))
			Expect(w.Header().Get("Content-Type")).To(Equal("text/html"))
			Expect(w.Body.Bytes()).To(Equal(table.Default().Payload))
		})
	})

	Describe("API proxy", func() {
		It("should forward POST /api/widgets in pass mode and relay the response", func() {
			w := serve(httptest.NewRequest(http.MethodPost, "/api/widgets", strings.NewReader(`{"n":1}`)))

			Expect(fwd.forwardCalls()).To(ConsistOf(forwardCall{
				method: http.MethodPost,
				path:   "/api/widgets",
				mode:   forward.ModePass,
			}))
			Expect(w.Code).To(Equal(http.StatusCreated))
			Expect(w.Header().Get("X-Backend")).To(Equal("edge_app"))
			Expect(w.Body.String()).To(Equal(`{"method":"POST","path":"/api/widgets"}`))
			Expect(sink.Len()).To(BeZero())
		})

		It("should forward GET under /api/ instead of serving assets", func() {
			serve(httptest.NewRequest(http.MethodGet, "/api/main.js", nil))

			calls := fwd.forwardCalls()
			Expect(calls).To(HaveLen(1))
			Expect(calls[0].mode).To(Equal(forward.ModePass))
		})

		It("should abort the request when the backend is unreachable", func() {
			fwd.err = fmt.Errorf("%w: edge_app: connection refused", forward.ErrBackendUnreachable)
			w := httptest.NewRecorder()

			Expect(func() {
				h.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/widgets", nil))
			}).To(PanicWith(http.ErrAbortHandler))
			Expect(w.Body.Len()).To(BeZero())

			Eventually(func() int64 {
				return collector.Snapshot().Backends["edge_app"].Failures
			}, time.Second).Should(BeEquivalentTo(1))
		})
	})

	Describe("websocket upgrade", func() {
		It("should hand off to the backend and emit a record with the session", func() {
			req := httptest.NewRequest(http.MethodGet, "/stream?session=s-42", nil)
			req.Header.Set("Upgrade", "websocket")

			w := serve(req)

			Expect(w.Code).To(Equal(http.StatusSwitchingProtocols))
			Expect(fwd.upgradeCalls()).To(ConsistOf("/stream?session=s-42"))

			recs := records(sink)
			Expect(recs).To(HaveLen(1))
			Expect(recs[0]).To(HaveKeyWithValue("msg", "Upgrading websocket connection"))
			Expect(recs[0]).To(HaveKeyWithValue("session", "s-42"))
		})

		It("should record a null session when the parameter is absent", func() {
			req := httptest.NewRequest(http.MethodGet, "/", nil)
			req.Header.Set("Upgrade", "websocket")

			serve(req)

			recs := records(sink)
			Expect(recs).To(HaveLen(1))
			Expect(recs[0]).To(HaveKey("session"))
			Expect(recs[0]["session"]).To(BeNil())
		})

		It("should take precedence over the API prefix and method gate", func() {
			req := httptest.NewRequest(http.MethodPost, "/api/socket", nil)
			req.Header.Set("Upgrade", "websocket")

			serve(req)

			Expect(fwd.upgradeCalls()).To(HaveLen(1))
			Expect(fwd.forwardCalls()).To(BeEmpty())
		})

		It("should treat other Upgrade values as ordinary requests", func() {
			req := httptest.NewRequest(http.MethodGet, "/main.css", nil)
			req.Header.Set("Upgrade", "WebSocket")

			w := serve(req)

			Expect(w.Code).To(Equal(http.StatusOK))
			Expect(w.Header().Get("Content-Type")).To(Equal("text/css"))
			Expect(fwd.upgradeCalls()).To(BeEmpty())
		})

		It("should abort when the backend refuses the upgrade", func() {
			fwd.err = fmt.Errorf("%w: edge_app: dial failed", forward.ErrBackendUnreachable)
			req := httptest.NewRequest(http.MethodGet, "/", nil)
			req.Header.Set("Upgrade", "websocket")

			Expect(func() { serve(req) }).To(PanicWith(http.ErrAbortHandler))
		})
	})

	Describe("Dispatch", func() {
		It("should return the forwarder error without writing a response", func() {
			fwd.err = fmt.Errorf("%w: edge_app: timeout", forward.ErrBackendUnreachable)
			w := httptest.NewRecorder()

			err := h.Dispatch(w, httptest.NewRequest(http.MethodDelete, "/api/widgets/1", nil))

			Expect(errors.Is(err, forward.ErrBackendUnreachable)).To(BeTrue())
			Expect(w.Body.Len()).To(BeZero())
			Expect(w.Header()).To(BeEmpty())
		})

		It("should never fail for local responses", func() {
			fwd.err = errors.New("unused")

			Expect(h.Dispatch(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/x", nil))).To(Succeed())
			Expect(h.Dispatch(httptest.NewRecorder(), httptest.NewRequest(http.MethodPatch, "/x", nil))).To(Succeed())
		})
	})

	Describe("metrics", func() {
		It("should count responses per class", func() {
			serve(httptest.NewRequest(http.MethodGet, "/main.js", nil))
			serve(httptest.NewRequest(http.MethodPut, "/main.js", nil))

			Eventually(func() map[int]int64 {
				return collector.Snapshot().Classes["method_rejected"].StatusCodes
			}, time.Second).Should(HaveKeyWithValue(http.StatusMethodNotAllowed, int64(1)))
			Eventually(func() int64 {
				return collector.Snapshot().Classes["asset_serve"].Requests
			}, time.Second).Should(BeEquivalentTo(1))
		})
	})
})
