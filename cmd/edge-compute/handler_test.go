package main

import (
	"bytes"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/angeloszaimis/edge-router/config"
)

var _ = Describe("newEdgeHandler", func() {
	const envKey = "EDGE_COMPUTE_TEST_HOSTNAME"

	var (
		cfg  *config.Config
		log  *slog.Logger
		sink *bytes.Buffer
	)

	BeforeEach(func() {
		cfg = &config.Config{
			Backend: config.BackendConfig{Name: config.DefaultBackendName},
			Logging: config.LoggingConfig{SourceEnv: envKey},
		}
		log = slog.New(slog.NewTextHandler(io.Discard, nil))
		sink = &bytes.Buffer{}
	})

	AfterEach(func() {
		os.Unsetenv(envKey)
	})

	It("should refuse to start without a log source", func() {
		_, err := newEdgeHandler(cfg, log, sink)
		Expect(errors.Is(err, config.ErrMissingEnvironment)).To(BeTrue())
	})

	Context("with a log source", func() {
		BeforeEach(func() {
			os.Setenv(envKey, "cache-sjc-07")
		})

		It("should serve built-in assets", func() {
			h, err := newEdgeHandler(cfg, log, sink)
			Expect(err).NotTo(HaveOccurred())

			w := httptest.NewRecorder()
			h.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/robots.txt", nil))

			Expect(w.Code).To(Equal(http.StatusOK))
			Expect(w.Header().Get("Content-Type")).To(Equal("text/plain"))
		})

		It("should stamp demo records with the source", func() {
			h, err := newEdgeHandler(cfg, log, sink)
			Expect(err).NotTo(HaveOccurred())

			h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/rooms/1?session=xyz", nil))

			var rec map[string]any
			Expect(json.Unmarshal(sink.Bytes(), &rec)).To(Succeed())
			Expect(rec).To(HaveKeyWithValue("source", "cache-sjc-07"))
			Expect(rec).To(HaveKeyWithValue("session", "xyz"))
			Expect(rec).To(HaveKeyWithValue("msg", "Sending index.html"))
		})

		It("should abort API requests that did not arrive through fsthttp", func() {
			h, err := newEdgeHandler(cfg, log, sink)
			Expect(err).NotTo(HaveOccurred())

			Expect(func() {
				h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/api/rooms/", nil))
			}).To(PanicWith(http.ErrAbortHandler))
		})
	})
})
