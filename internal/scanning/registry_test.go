package scanning

import (
	"context"
	"errors"
	"sync"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/zombor/receipt-ocr/internal/parsing"
)

var _ = Describe("Registry", func() {
	var (
		ctx      context.Context
		registry *Registry
		baidu    *fakeEngine
		local    *fakeEngine
	)

	BeforeEach(func() {
		ctx = context.Background()
		registry = NewRegistry()
		baidu = &fakeEngine{
			name:      "BaiduOCR",
			fragments: []parsing.Fragment{{Text: "沃尔玛超市", Confidence: 0.9}},
		}
		local = &fakeEngine{
			name:      "Tesseract",
			fragments: []parsing.Fragment{{Text: "TESCO store", Confidence: 88}},
		}
	})

	Describe("Register", func() {
		var err error

		JustBeforeEach(func() {
			err = registry.Register(ctx, "baiduocr", baidu, []string{"ch_sim", "en"})
		})

		When("initialization succeeds", func() {
			It("should not return an error", func() {
				Expect(err).NotTo(HaveOccurred())
			})

			It("should initialize the engine with the languages", func() {
				Expect(baidu.languages).To(Equal([]string{"ch_sim", "en"}))
			})

			It("should make the first engine the default", func() {
				Expect(registry.Default()).To(Equal("baiduocr"))
			})

			It("should list the engine", func() {
				Expect(registry.Names()).To(Equal([]string{"baiduocr"}))
			})

			It("should reject a second engine under the same name", func() {
				Expect(registry.Register(ctx, "baiduocr", local, nil)).To(HaveOccurred())
			})
		})

		When("initialization fails", func() {
			var setupErr error

			BeforeEach(func() {
				setupErr = errors.New("missing credentials")
				baidu.initErr = setupErr
			})

			It("returns the error", func() {
				Expect(err).To(MatchError(setupErr))
			})

			It("should not add the engine", func() {
				Expect(registry.Names()).To(BeEmpty())
				Expect(registry.Default()).To(BeEmpty())
			})
		})
	})

	Describe("with engines registered", func() {
		BeforeEach(func() {
			Expect(registry.Register(ctx, "baiduocr", baidu, nil)).To(Succeed())
			Expect(registry.Register(ctx, "tesseract", local, nil)).To(Succeed())
		})

		It("should keep registration order", func() {
			Expect(registry.Names()).To(Equal([]string{"baiduocr", "tesseract"}))
		})

		Describe("Recognize", func() {
			var (
				name      string
				used      string
				fragments []parsing.Fragment
				err       error
			)

			JustBeforeEach(func() {
				used, fragments, err = registry.Recognize(ctx, name, []byte("image"), "image/jpeg")
			})

			When("no engine is named", func() {
				BeforeEach(func() {
					name = ""
				})

				It("should use the default engine", func() {
					Expect(err).NotTo(HaveOccurred())
					Expect(used).To(Equal("baiduocr"))
					Expect(fragments).To(Equal(baidu.fragments))
				})
			})

			When("an engine is named", func() {
				BeforeEach(func() {
					name = "tesseract"
				})

				It("should use that engine", func() {
					Expect(err).NotTo(HaveOccurred())
					Expect(used).To(Equal("tesseract"))
					Expect(fragments).To(Equal(local.fragments))
				})
			})

			When("the engine is unknown", func() {
				BeforeEach(func() {
					name = "easyocr"
				})

				It("returns ErrUnknownEngine", func() {
					Expect(err).To(MatchError(ErrUnknownEngine))
				})
			})

			When("the engine fails", func() {
				var setupErr error

				BeforeEach(func() {
					name = "tesseract"
					setupErr = errors.New("tesseract crashed")
					local.recognizeErr = setupErr
				})

				It("returns the error", func() {
					Expect(err).To(MatchError(setupErr))
				})
			})
		})

		Describe("SetDefault", func() {
			It("should switch the default engine", func() {
				Expect(registry.SetDefault("tesseract")).To(Succeed())
				Expect(registry.Default()).To(Equal("tesseract"))
			})

			It("should reject unknown engines", func() {
				Expect(registry.SetDefault("easyocr")).To(MatchError(ErrUnknownEngine))
				Expect(registry.Default()).To(Equal("baiduocr"))
			})
		})

		Describe("Info", func() {
			It("should describe the engine", func() {
				info, err := registry.Info("baiduocr")
				Expect(err).NotTo(HaveOccurred())
				Expect(info.Name).To(Equal("BaiduOCR"))
				Expect(info.Initialized).To(BeTrue())
			})

			It("returns ErrUnknownEngine for unknown engines", func() {
				_, err := registry.Info("easyocr")
				Expect(err).To(MatchError(ErrUnknownEngine))
			})
		})

		Describe("concurrent use", func() {
			It("should serve recognitions and lookups in parallel", func() {
				var wg sync.WaitGroup
				for i := range 32 {
					wg.Add(1)
					go func() {
						defer GinkgoRecover()
						defer wg.Done()

						name := []string{"", "baiduocr", "tesseract"}[i%3]
						used, fragments, err := registry.Recognize(ctx, name, []byte("image"), "image/jpeg")
						Expect(err).NotTo(HaveOccurred())
						if used == "tesseract" {
							Expect(fragments).To(Equal(local.fragments))
						} else {
							Expect(used).To(Equal("baiduocr"))
							Expect(fragments).To(Equal(baidu.fragments))
						}

						info, err := registry.Info(name)
						Expect(err).NotTo(HaveOccurred())
						Expect(info.Initialized).To(BeTrue())
						Expect(registry.Names()).To(Equal([]string{"baiduocr", "tesseract"}))
						Expect(registry.Default()).To(Equal("baiduocr"))
					}()
				}
				wg.Wait()
			})
		})

		Describe("Close", func() {
			It("should close every engine", func() {
				Expect(registry.Close()).To(Succeed())
				Expect(baidu.closed).To(BeTrue())
				Expect(local.closed).To(BeTrue())
			})

			It("should report close errors after closing the rest", func() {
				setupErr := errors.New("close failed")
				baidu.closeErr = setupErr
				Expect(registry.Close()).To(MatchError(setupErr))
				Expect(local.closed).To(BeTrue())
			})
		})
	})
})
