package instance_test

import (
	"fmt"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/angeloszaimis/instance-gateway/internal/instance"
)

func mustEndpoints(urls ...string) []*instance.Endpoint {
	GinkgoHelper()
	endpoints, err := instance.ParseEndpoints(urls)
	Expect(err).NotTo(HaveOccurred())
	return endpoints
}

var _ = Describe("Router", func() {
	urls := []string{"http://localhost:3000", "http://localhost:3001", "http://localhost:3002"}

	It("should require at least one endpoint", func() {
		_, err := instance.NewRouter(nil)
		Expect(err).To(MatchError(instance.ErrNoEndpoints))
	})

	It("should reject an empty name", func() {
		r, err := instance.NewRouter(mustEndpoints(urls...))
		Expect(err).NotTo(HaveOccurred())

		_, err = r.Resolve("")
		Expect(err).To(MatchError(instance.ErrInvalidName))
	})

	It("should return the same handle for the same name", func() {
		r, err := instance.NewRouter(mustEndpoints(urls...))
		Expect(err).NotTo(HaveOccurred())

		first, err := r.Resolve("default")
		Expect(err).NotTo(HaveOccurred())
		second, err := r.Resolve("default")
		Expect(err).NotTo(HaveOccurred())

		Expect(second).To(BeIdenticalTo(first))
	})

	It("should place a name on the same endpoint across routers", func() {
		a, err := instance.NewRouter(mustEndpoints(urls...))
		Expect(err).NotTo(HaveOccurred())
		b, err := instance.NewRouter(mustEndpoints(urls...))
		Expect(err).NotTo(HaveOccurred())

		for i := 0; i < 50; i++ {
			name := fmt.Sprintf("instance-%d", i)
			ha, err := a.Handle(name)
			Expect(err).NotTo(HaveOccurred())
			hb, err := b.Handle(name)
			Expect(err).NotTo(HaveOccurred())

			Expect(ha.Name()).To(Equal(name))
			Expect(ha.Endpoint().Key()).To(Equal(hb.Endpoint().Key()))
		}
	})

	It("should route everything to a single endpoint", func() {
		r, err := instance.NewRouter(mustEndpoints("http://localhost:3000"))
		Expect(err).NotTo(HaveOccurred())

		for _, name := range []string{"default", "other", "x"} {
			h, err := r.Handle(name)
			Expect(err).NotTo(HaveOccurred())
			Expect(h.Endpoint().Key()).To(Equal("http://localhost:3000"))
		}
		Expect(r.Endpoints()).To(HaveLen(1))
	})

	It("should hand out one handle under concurrent resolution", func() {
		r, err := instance.NewRouter(mustEndpoints(urls...))
		Expect(err).NotTo(HaveOccurred())

		handles := make(chan *instance.Handle, 50)
		for i := 0; i < 50; i++ {
			go func() {
				defer GinkgoRecover()
				h, err := r.Handle("default")
				Expect(err).NotTo(HaveOccurred())
				handles <- h
			}()
		}

		first := <-handles
		for i := 1; i < 50; i++ {
			Expect(<-handles).To(BeIdenticalTo(first))
		}
	})
})
