package scanning

import (
	"context"
	"net/http"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"github.com/onsi/gomega/ghttp"

	"github.com/zombor/receipt-ocr/internal/parsing"
)

var _ = Describe("Baidu", func() {
	var (
		ctx    context.Context
		server *ghttp.Server
		engine *Baidu
		now    time.Time
	)

	tokenQuery := "grant_type=client_credentials&client_id=key&client_secret=secret"

	tokenHandler := func(token string) http.HandlerFunc {
		return ghttp.CombineHandlers(
			ghttp.VerifyRequest("POST", "/oauth/2.0/token", tokenQuery),
			ghttp.RespondWithJSONEncoded(http.StatusOK, map[string]any{
				"access_token": token,
				"expires_in":   3600,
			}),
		)
	}

	BeforeEach(func() {
		ctx = context.Background()
		server = ghttp.NewServer()
		engine = NewBaiduWithURL("key", "secret", server.URL())
		now = time.Date(2024, 3, 15, 10, 0, 0, 0, time.UTC)
		engine.now = func() time.Time { return now }
	})

	AfterEach(func() {
		server.Close()
	})

	Describe("Initialize", func() {
		var err error

		When("the token request succeeds", func() {
			BeforeEach(func() {
				server.AppendHandlers(tokenHandler("token-1"))
			})

			JustBeforeEach(func() {
				err = engine.Initialize(ctx, []string{"ch_sim", "en"})
			})

			It("should not return an error", func() {
				Expect(err).NotTo(HaveOccurred())
			})

			It("should report itself initialized", func() {
				Expect(engine.Info().Initialized).To(BeTrue())
			})

			It("should request a token once", func() {
				Expect(server.ReceivedRequests()).To(HaveLen(1))
			})
		})

		When("only English is requested", func() {
			BeforeEach(func() {
				server.AppendHandlers(tokenHandler("token-1"))
			})

			It("should recognize English only", func() {
				Expect(engine.Initialize(ctx, []string{"en"})).To(Succeed())
				Expect(engine.languageType).To(Equal("ENG"))
			})
		})

		When("the credentials are rejected", func() {
			BeforeEach(func() {
				server.AppendHandlers(ghttp.RespondWithJSONEncoded(http.StatusUnauthorized, map[string]string{
					"error":             "invalid_client",
					"error_description": "unknown client id",
				}))
			})

			It("returns an error", func() {
				Expect(engine.Initialize(ctx, nil)).To(HaveOccurred())
				Expect(engine.Info().Initialized).To(BeFalse())
			})
		})

		When("the credentials are missing", func() {
			BeforeEach(func() {
				engine = NewBaiduWithURL("", "", server.URL())
			})

			It("returns an error without calling the API", func() {
				Expect(engine.Initialize(ctx, nil)).To(HaveOccurred())
				Expect(server.ReceivedRequests()).To(BeEmpty())
			})
		})
	})

	Describe("RecognizeText", func() {
		var (
			fragments []parsing.Fragment
			err       error
		)

		ocrHandler := func(token string, body any) http.HandlerFunc {
			return ghttp.CombineHandlers(
				ghttp.VerifyRequest("POST", "/rest/2.0/ocr/v1/accurate_basic", "access_token="+token),
				ghttp.VerifyContentType("application/x-www-form-urlencoded"),
				ghttp.VerifyFormKV("language_type", "CHN_ENG"),
				ghttp.VerifyFormKV("probability", "true"),
				ghttp.RespondWithJSONEncoded(http.StatusOK, body),
			)
		}

		wordsResult := map[string]any{
			"words_result": []map[string]any{
				{
					"words":       "沃尔玛超市",
					"probability": map[string]any{"average": 0.98},
					"location":    map[string]any{"left": 10, "top": 20, "width": 100, "height": 30},
				},
				{
					"words":       "合计 15.50",
					"probability": map[string]any{"average": 0.91},
					"location":    map[string]any{"left": 12, "top": 400, "width": 90, "height": 28},
				},
			},
		}

		When("a token refresh is slow", func() {
			var (
				started chan struct{}
				release chan struct{}
			)

			BeforeEach(func() {
				started = make(chan struct{})
				release = make(chan struct{})
				server.AppendHandlers(
					tokenHandler("token-1"),
					ghttp.CombineHandlers(
						func(w http.ResponseWriter, r *http.Request) {
							close(started)
							<-release
						},
						tokenHandler("token-2"),
					),
					ocrHandler("token-2", wordsResult),
				)
			})

			It("should still describe the engine while the token is fetched", func() {
				Expect(engine.Initialize(ctx, []string{"ch_sim", "en"})).To(Succeed())
				now = now.Add(time.Hour)

				recognized := make(chan error, 1)
				go func() {
					_, err := engine.RecognizeText(ctx, []byte("jpeg bytes"), "image/jpeg")
					recognized <- err
				}()
				Eventually(started).Should(BeClosed())

				described := make(chan EngineInfo, 1)
				go func() {
					described <- engine.Info()
				}()
				var info EngineInfo
				Eventually(described).Should(Receive(&info))
				Expect(info.Initialized).To(BeTrue())

				close(release)
				var recognizeErr error
				Eventually(recognized).Should(Receive(&recognizeErr))
				Expect(recognizeErr).NotTo(HaveOccurred())
			})
		})

		When("the engine is not initialized", func() {
			It("returns ErrEngineNotInitialized", func() {
				_, err := engine.RecognizeText(ctx, []byte("jpeg"), "image/jpeg")
				Expect(err).To(MatchError(ErrEngineNotInitialized))
			})
		})

		When("the engine is initialized", func() {
			BeforeEach(func() {
				server.AppendHandlers(tokenHandler("token-1"))
				Expect(engine.Initialize(ctx, []string{"ch_sim", "en"})).To(Succeed())
			})

			JustBeforeEach(func() {
				fragments, err = engine.RecognizeText(ctx, []byte("jpeg bytes"), "image/jpeg")
			})

			When("recognition succeeds", func() {
				BeforeEach(func() {
					server.AppendHandlers(ocrHandler("token-1", wordsResult))
				})

				It("should not return an error", func() {
					Expect(err).NotTo(HaveOccurred())
				})

				It("should convert every word result to a fragment", func() {
					Expect(fragments).To(Equal([]parsing.Fragment{
						{Text: "沃尔玛超市", Confidence: 0.98, BoundingBox: []float64{10, 20, 110, 20, 110, 50, 10, 50}},
						{Text: "合计 15.50", Confidence: 0.91, BoundingBox: []float64{12, 400, 102, 400, 102, 428, 12, 428}},
					}))
				})

				It("should reuse the cached token", func() {
					Expect(server.ReceivedRequests()).To(HaveLen(2))
				})
			})

			When("the token is about to expire", func() {
				BeforeEach(func() {
					now = now.Add(3600*time.Second - 30*time.Second)
					server.AppendHandlers(tokenHandler("token-2"), ocrHandler("token-2", wordsResult))
				})

				It("should refresh the token first", func() {
					Expect(err).NotTo(HaveOccurred())
					Expect(server.ReceivedRequests()).To(HaveLen(3))
				})
			})

			When("the API reports an error in the body", func() {
				BeforeEach(func() {
					server.AppendHandlers(ocrHandler("token-1", map[string]any{
						"error_code": 17,
						"error_msg":  "Open api daily request limit reached",
					}))
				})

				It("returns the error", func() {
					Expect(err).To(MatchError(ContainSubstring("daily request limit")))
				})
			})

			When("the API returns a non-200 status", func() {
				BeforeEach(func() {
					server.AppendHandlers(ghttp.RespondWith(http.StatusInternalServerError, "boom"))
				})

				It("returns an error", func() {
					Expect(err).To(MatchError(ContainSubstring("status 500")))
				})
			})
		})
	})

	Describe("Info", func() {
		It("should describe the engine", func() {
			info := engine.Info()
			Expect(info.Name).To(Equal("BaiduOCR"))
			Expect(info.Languages).To(ConsistOf("CHN_ENG", "ENG"))
			Expect(info.Initialized).To(BeFalse())
		})
	})
})
