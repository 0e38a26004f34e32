package http3

import (
	"testing"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

func TestHTTP3Suite(t *testing.T) {
	RegisterFailHandler(Fail)
	RunSpecs(t, "http3 BDD suite")
}

var _ = Describe("GOAWAY", func() {
	var (
		gen     *goAwayGenerator
		handler *goAwayHandler
		gotID   uint64
		gotCall bool
	)

	BeforeEach(func() {
		gen = &goAwayGenerator{}
		gotID, gotCall = 0, false
		handler = &goAwayHandler{onGoAway: func(id uint64) {
			gotID, gotCall = id, true
		}}
	})

	Context("before arming", func() {
		It("produces nothing", func() {
			_, ok := gen.GenerateFrame()
			Expect(ok).To(BeFalse())
			Expect(gen.IsDone()).To(BeFalse())
		})
	})

	Context("once armed", func() {
		It("emits exactly one GOAWAY frame carrying the armed ID", func() {
			gen.arm(42)

			f, ok := gen.GenerateFrame()
			Expect(ok).To(BeTrue())
			Expect(gen.IsDone()).To(BeTrue())

			_, ok2 := gen.GenerateFrame()
			Expect(ok2).To(BeFalse())

			By("feeding the generated frame into a handler")
			err := handler.HandleFrame(0, RoleControl, 0, f)
			Expect(err).To(BeNil())
			Expect(gotCall).To(BeTrue())
			Expect(gotID).To(Equal(uint64(42)))
		})
	})

	Context("with a nil onGoAway callback", func() {
		It("does not panic", func() {
			h := &goAwayHandler{}
			gen.arm(7)
			f, _ := gen.GenerateFrame()
			Expect(func() { h.HandleFrame(0, RoleControl, 0, f) }).ToNot(Panic())
		})
	})
})
