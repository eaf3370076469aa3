package scan

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"github.com/onsi/gomega/ghttp"

	"github.com/zombor/id-scanner/internal/engine"
)

// scanUpload builds a multipart body with one file part per frame
func scanUpload(camera string, frames ...[]byte) (*bytes.Buffer, string) {
	body := &bytes.Buffer{}
	writer := multipart.NewWriter(body)
	for i, data := range frames {
		h := make(textproto.MIMEHeader)
		h.Set("Content-Disposition", fmt.Sprintf(`form-data; name="frames"; filename="frame-%d.jpg"`, i))
		h.Set("Content-Type", "image/jpeg")
		part, err := writer.CreatePart(h)
		Expect(err).NotTo(HaveOccurred())
		_, err = part.Write(data)
		Expect(err).NotTo(HaveOccurred())
	}
	if camera != "" {
		Expect(writer.WriteField("camera", camera)).To(Succeed())
	}
	Expect(writer.Close()).To(Succeed())
	return body, writer.FormDataContentType()
}

var _ = Describe("Server", func() {
	var (
		ctx          context.Context
		eng          *mockEngine
		db           *mockDB
		orchestrator *Orchestrator
		server       *Server
		auth         BasicAuth
		ghttpServer  *ghttp.Server
	)

	setupServer := func() {
		if ghttpServer != nil {
			ghttpServer.Close()
		}
		server = NewServerWithMux(orchestrator, auth, http.NewServeMux())
		ghttpServer = ghttp.NewServer()
		ghttpServer.AppendHandlers(server.Handler().ServeHTTP)
	}

	readBody := func(resp *http.Response) string {
		defer resp.Body.Close()
		body, err := io.ReadAll(resp.Body)
		Expect(err).NotTo(HaveOccurred())
		return string(body)
	}

	BeforeEach(func() {
		ctx = context.Background()
		eng = newMockEngine()
		db = newMockDB()
		orchestrator = NewOrchestratorWithDeps(eng, db, Settings{License: "ABC"},
			&mockIDGenerator{id: "attempt-1"},
			&mockTimeSource{now: time.Date(2024, 1, 15, 12, 0, 0, 0, time.UTC)})
		auth = BasicAuth{}
		setupServer()
	})

	AfterEach(func() {
		if ghttpServer != nil {
			ghttpServer.Close()
		}
	})

	Describe("handleIndex", func() {
		When("the engine is still loading", func() {
			It("should show only the initial screen", func() {
				resp, err := http.Get(ghttpServer.URL() + "/")
				Expect(err).NotTo(HaveOccurred())
				Expect(resp.StatusCode).To(Equal(http.StatusOK))

				body := readBody(resp)
				Expect(body).To(ContainSubstring(`data-screen="initial"`))
				Expect(body).To(ContainSubstring("Loading..."))
				Expect(body).To(ContainSubstring(`id="screen-initial" class="screen"`))
				Expect(body).To(ContainSubstring(`id="screen-start" class="screen hidden"`))
				Expect(body).To(ContainSubstring(`id="screen-scanning" class="screen hidden"`))
			})
		})

		When("the engine is ready", func() {
			BeforeEach(func() {
				Expect(orchestrator.Initialize(ctx)).To(Succeed())
			})

			It("should show only the start screen", func() {
				resp, err := http.Get(ghttpServer.URL() + "/")
				Expect(err).NotTo(HaveOccurred())

				body := readBody(resp)
				Expect(body).To(ContainSubstring(`data-screen="start"`))
				Expect(body).To(ContainSubstring(`id="screen-initial" class="screen hidden"`))
				Expect(body).To(ContainSubstring(`id="screen-start" class="screen"`))
			})
		})

		When("the environment is unsupported", func() {
			BeforeEach(func() {
				eng.supported = false
				Expect(orchestrator.Initialize(ctx)).To(MatchError(ErrUnsupported))
			})

			It("should say so on the initial screen", func() {
				resp, err := http.Get(ghttpServer.URL() + "/")
				Expect(err).NotTo(HaveOccurred())
				Expect(readBody(resp)).To(ContainSubstring("This environment is not supported!"))
			})
		})

		When("request method is not GET", func() {
			It("should return status Method Not Allowed", func() {
				req, err := http.NewRequest("POST", ghttpServer.URL()+"/", nil)
				Expect(err).NotTo(HaveOccurred())
				resp, err := http.DefaultClient.Do(req)
				Expect(err).NotTo(HaveOccurred())
				Expect(resp.StatusCode).To(Equal(http.StatusMethodNotAllowed))
				resp.Body.Close()
			})
		})
	})

	Describe("handleState", func() {
		BeforeEach(func() {
			eng.progress = []int{40}
			eng.loadErr = errors.New("bad license")
			Expect(orchestrator.Initialize(ctx)).NotTo(Succeed())
		})

		It("should return the current view", func() {
			resp, err := http.Get(ghttpServer.URL() + "/api/state")
			Expect(err).NotTo(HaveOccurred())
			Expect(resp.StatusCode).To(Equal(http.StatusOK))
			Expect(resp.Header.Get("Content-Type")).To(Equal("application/json"))

			var view View
			Expect(json.Unmarshal([]byte(readBody(resp)), &view)).To(Succeed())
			Expect(view.Screen).To(Equal(ScreenInitial))
			Expect(view.Message).To(Equal("Failed to load SDK!"))
			Expect(view.Progress).To(Equal(40))
			Expect(view.LoadFailed).To(BeTrue())
			Expect(view.Phase).To(Equal(PhaseLoading))
			Expect(view.CanStart).To(BeFalse())
		})
	})

	Describe("handleStartScan", func() {
		var (
			resp *http.Response
			body *bytes.Buffer
			ct   string
		)

		BeforeEach(func() {
			body, ct = scanUpload("front", []byte("front"), []byte("back"))
		})

		JustBeforeEach(func() {
			var err error
			resp, err = http.Post(ghttpServer.URL()+"/api/scans", ct, body)
			Expect(err).NotTo(HaveOccurred())
		})

		When("the scanner is ready", func() {
			BeforeEach(func() {
				eng.result = &engine.IDResult{
					State:       engine.Valid,
					FirstName:   engine.ScriptString{Latin: "Jane"},
					LastName:    engine.ScriptString{Latin: "Doe"},
					DateOfBirth: engine.Date{Year: 1990, Month: 2, Day: 14},
				}
				Expect(orchestrator.Initialize(ctx)).To(Succeed())
			})

			It("should return the greeting", func() {
				Expect(resp.StatusCode).To(Equal(http.StatusOK))

				var outcome Outcome
				Expect(json.Unmarshal([]byte(readBody(resp)), &outcome)).To(Succeed())
				Expect(outcome.AttemptID).To(Equal("attempt-1"))
				Expect(outcome.Greeting).To(Equal("Hello, Jane Doe!\n You were born on 1990-2-14."))
			})

			It("should not show the greeting to other clients", func() {
				resp.Body.Close()
				Expect(orchestrator.State().Phase).To(Equal(PhaseReady))

				var buf bytes.Buffer
				Expect(renderPage(&buf, orchestrator.View())).To(Succeed())
				Expect(buf.String()).NotTo(ContainSubstring("Jane"))

				data, err := json.Marshal(orchestrator.View())
				Expect(err).NotTo(HaveOccurred())
				Expect(string(data)).NotTo(ContainSubstring("Jane"))
			})

			It("should use the requested camera", func() {
				resp.Body.Close()
				Expect(eng.cameras).To(Equal([]engine.CameraPreference{engine.FrontFacingCamera}))
				Expect(db.attempts["attempt-1"].Frames).To(Equal(2))
			})
		})

		When("no frames are uploaded", func() {
			BeforeEach(func() {
				body, ct = scanUpload("front")
				Expect(orchestrator.Initialize(ctx)).To(Succeed())
			})

			It("should return status Bad Request", func() {
				Expect(resp.StatusCode).To(Equal(http.StatusBadRequest))
				Expect(readBody(resp)).To(ContainSubstring("No frames were captured"))
			})
		})

		When("the body is not multipart", func() {
			BeforeEach(func() {
				body = bytes.NewBufferString("not a form")
				ct = "text/plain"
				Expect(orchestrator.Initialize(ctx)).To(Succeed())
			})

			It("should return status Bad Request", func() {
				Expect(resp.StatusCode).To(Equal(http.StatusBadRequest))
				Expect(readBody(resp)).To(ContainSubstring("Error parsing form"))
			})
		})

		When("the scanner is not ready", func() {
			It("should return status Conflict", func() {
				Expect(resp.StatusCode).To(Equal(http.StatusConflict))
				resp.Body.Close()
				Expect(eng.allocated["recognizer"]).To(BeZero())
			})
		})

		When("the scan fails", func() {
			BeforeEach(func() {
				eng.recognizeErr = errors.New("camera lost")
				Expect(orchestrator.Initialize(ctx)).To(Succeed())
			})

			It("should return status Internal Server Error", func() {
				Expect(resp.StatusCode).To(Equal(http.StatusInternalServerError))

				var payload map[string]string
				Expect(json.Unmarshal([]byte(readBody(resp)), &payload)).To(Succeed())
				Expect(payload["error"]).To(ContainSubstring("camera lost"))
			})

			It("should leave the scanner ready with a notice", func() {
				resp.Body.Close()
				Expect(orchestrator.State().Phase).To(Equal(PhaseReady))
				Expect(orchestrator.State().Notice).To(Equal("Scan failed, please try again."))
			})
		})
	})

	Describe("handleListScans", func() {
		When("attempts exist", func() {
			BeforeEach(func() {
				db.attempts["a"] = &Attempt{ID: "a", Outcome: OutcomeIdentified}
				db.attempts["b"] = &Attempt{ID: "b", Outcome: OutcomeEmpty}
			})

			It("should return them", func() {
				resp, err := http.Get(ghttpServer.URL() + "/api/scans")
				Expect(err).NotTo(HaveOccurred())
				Expect(resp.StatusCode).To(Equal(http.StatusOK))

				var attempts []*Attempt
				Expect(json.Unmarshal([]byte(readBody(resp)), &attempts)).To(Succeed())
				Expect(attempts).To(HaveLen(2))
			})
		})

		When("no attempts exist", func() {
			It("should return an empty array", func() {
				resp, err := http.Get(ghttpServer.URL() + "/api/scans")
				Expect(err).NotTo(HaveOccurred())
				Expect(readBody(resp)).To(MatchJSON("[]"))
			})
		})

		When("the database fails", func() {
			BeforeEach(func() {
				db.listErr = errors.New("database error")
			})

			It("should return status Internal Server Error", func() {
				resp, err := http.Get(ghttpServer.URL() + "/api/scans")
				Expect(err).NotTo(HaveOccurred())
				Expect(resp.StatusCode).To(Equal(http.StatusInternalServerError))
				resp.Body.Close()
			})
		})
	})

	Describe("handleGetScan", func() {
		BeforeEach(func() {
			db.attempts["a"] = &Attempt{ID: "a", Outcome: OutcomeFailed, Error: "camera lost"}
		})

		When("the attempt exists", func() {
			It("should return it", func() {
				resp, err := http.Get(ghttpServer.URL() + "/api/scans/a")
				Expect(err).NotTo(HaveOccurred())
				Expect(resp.StatusCode).To(Equal(http.StatusOK))

				var attempt Attempt
				Expect(json.Unmarshal([]byte(readBody(resp)), &attempt)).To(Succeed())
				Expect(attempt.Error).To(Equal("camera lost"))
			})
		})

		When("the attempt does not exist", func() {
			It("should return status Not Found", func() {
				resp, err := http.Get(ghttpServer.URL() + "/api/scans/missing")
				Expect(err).NotTo(HaveOccurred())
				Expect(resp.StatusCode).To(Equal(http.StatusNotFound))
				resp.Body.Close()
			})
		})
	})

	Describe("static assets", func() {
		It("should serve the stylesheet", func() {
			resp, err := http.Get(ghttpServer.URL() + "/static/app.css")
			Expect(err).NotTo(HaveOccurred())
			Expect(resp.Header.Get("Content-Type")).To(Equal("text/css"))
			resp.Body.Close()
		})

		It("should serve the script", func() {
			resp, err := http.Get(ghttpServer.URL() + "/static/app.js")
			Expect(err).NotTo(HaveOccurred())
			Expect(readBody(resp)).To(ContainSubstring("/api/scans"))
		})
	})

	Describe("CORS", func() {
		It("should answer preflight requests", func() {
			req, err := http.NewRequest(http.MethodOptions, ghttpServer.URL()+"/api/scans", nil)
			Expect(err).NotTo(HaveOccurred())
			resp, err := http.DefaultClient.Do(req)
			Expect(err).NotTo(HaveOccurred())
			Expect(resp.StatusCode).To(Equal(http.StatusNoContent))
			Expect(resp.Header.Get("Access-Control-Allow-Origin")).To(Equal("*"))
			resp.Body.Close()
		})
	})

	Describe("basic auth", func() {
		BeforeEach(func() {
			auth = BasicAuth{Username: "admin", Password: "secret"}
			setupServer()
		})

		When("no credentials are sent", func() {
			It("should return status Unauthorized", func() {
				resp, err := http.Get(ghttpServer.URL() + "/api/state")
				Expect(err).NotTo(HaveOccurred())
				Expect(resp.StatusCode).To(Equal(http.StatusUnauthorized))
				Expect(resp.Header.Get("WWW-Authenticate")).To(ContainSubstring("Basic"))
				resp.Body.Close()
			})
		})

		When("wrong credentials are sent", func() {
			It("should return status Unauthorized", func() {
				req, err := http.NewRequest("GET", ghttpServer.URL()+"/api/state", nil)
				Expect(err).NotTo(HaveOccurred())
				req.SetBasicAuth("admin", "wrong")
				resp, err := http.DefaultClient.Do(req)
				Expect(err).NotTo(HaveOccurred())
				Expect(resp.StatusCode).To(Equal(http.StatusUnauthorized))
				resp.Body.Close()
			})
		})

		When("valid credentials are sent", func() {
			It("should return status OK", func() {
				req, err := http.NewRequest("GET", ghttpServer.URL()+"/api/state", nil)
				Expect(err).NotTo(HaveOccurred())
				req.Header.Set("Authorization", "Basic "+base64.StdEncoding.EncodeToString([]byte("admin:secret")))
				resp, err := http.DefaultClient.Do(req)
				Expect(err).NotTo(HaveOccurred())
				Expect(resp.StatusCode).To(Equal(http.StatusOK))
				resp.Body.Close()
			})
		})
	})
})
