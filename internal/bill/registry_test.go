package bill

import (
	"os"
	"path/filepath"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

// sequenceIDGenerator returns report-1, report-2, ...
type sequenceIDGenerator struct {
	ids []string
	n   int
}

func (g *sequenceIDGenerator) Generate() string {
	id := g.ids[g.n]
	g.n++
	return id
}

var _ = Describe("BoltRegistry", func() {
	var (
		tmpDir   string
		dbPath   string
		registry *BoltRegistry
		now      time.Time
	)

	writeReportFile := func(name string) string {
		path := filepath.Join(tmpDir, name)
		Expect(os.WriteFile(path, []byte("xlsx"), 0644)).To(Succeed())
		return path
	}

	BeforeEach(func() {
		tmpDir = GinkgoT().TempDir()
		dbPath = filepath.Join(tmpDir, "registry.db")
		now = time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC)
		var err error
		registry, err = NewBoltRegistryWithDeps(dbPath,
			&sequenceIDGenerator{ids: []string{"report-1", "report-2", "report-3"}},
			&mockTimeSource{now: now},
		)
		Expect(err).NotTo(HaveOccurred())
	})

	AfterEach(func() {
		if registry != nil {
			registry.Close()
		}
	})

	When("another registry holds the database", func() {
		It("returns the error", func() {
			_, err := NewBoltRegistry(dbPath)
			Expect(err).To(MatchError(ErrRegistryLocked))
		})
	})

	Describe("Track", func() {
		var (
			entry *ReportEntry
			err   error
		)

		JustBeforeEach(func() {
			entry, err = registry.Track(writeReportFile("one.xlsx"), &BatchResult{
				Submitted: 3,
				Records:   []Record{{Filename: "a.png"}, {Filename: "b.png"}},
			})
		})

		It("should not return an error", func() {
			Expect(err).NotTo(HaveOccurred())
		})

		It("should describe the report", func() {
			Expect(entry.ID).To(Equal("report-1"))
			Expect(entry.Path).To(Equal(filepath.Join(tmpDir, "one.xlsx")))
			Expect(entry.Submitted).To(Equal(3))
			Expect(entry.Extracted).To(Equal(2))
			Expect(entry.CreatedAt).To(Equal(now))
		})

		It("should be retrievable", func() {
			saved, getErr := registry.Get("report-1")
			Expect(getErr).NotTo(HaveOccurred())
			Expect(saved.Path).To(Equal(entry.Path))
		})
	})

	Describe("Get", func() {
		When("the report is unknown", func() {
			It("returns the error", func() {
				_, err := registry.Get("nope")
				Expect(err).To(MatchError(ErrReportNotFound))
			})
		})
	})

	Describe("List", func() {
		It("should return every tracked report", func() {
			_, err := registry.Track(writeReportFile("one.xlsx"), nil)
			Expect(err).NotTo(HaveOccurred())
			_, err = registry.Track(writeReportFile("two.xlsx"), nil)
			Expect(err).NotTo(HaveOccurred())

			entries, err := registry.List()
			Expect(err).NotTo(HaveOccurred())
			Expect(entries).To(HaveLen(2))
		})

		It("should return an empty list when nothing is tracked", func() {
			entries, err := registry.List()
			Expect(err).NotTo(HaveOccurred())
			Expect(entries).To(BeEmpty())
		})
	})

	Describe("Remove", func() {
		var path string

		BeforeEach(func() {
			path = writeReportFile("one.xlsx")
			_, err := registry.Track(path, nil)
			Expect(err).NotTo(HaveOccurred())
		})

		It("should delete the file and the entry", func() {
			Expect(registry.Remove("report-1")).To(Succeed())
			Expect(path).NotTo(BeAnExistingFile())
			_, err := registry.Get("report-1")
			Expect(err).To(MatchError(ErrReportNotFound))
		})

		It("should forget entries whose file is already gone", func() {
			Expect(os.Remove(path)).To(Succeed())
			Expect(registry.Remove("report-1")).To(Succeed())
			entries, err := registry.List()
			Expect(err).NotTo(HaveOccurred())
			Expect(entries).To(BeEmpty())
		})

		It("returns the error for an unknown report", func() {
			Expect(registry.Remove("nope")).To(MatchError(ErrReportNotFound))
		})
	})

	Describe("Release", func() {
		It("should remove every tracked file", func() {
			one := writeReportFile("one.xlsx")
			two := writeReportFile("two.xlsx")
			_, err := registry.Track(one, nil)
			Expect(err).NotTo(HaveOccurred())
			_, err = registry.Track(two, nil)
			Expect(err).NotTo(HaveOccurred())

			Expect(registry.Release()).To(Succeed())
			Expect(one).NotTo(BeAnExistingFile())
			Expect(two).NotTo(BeAnExistingFile())
			entries, err := registry.List()
			Expect(err).NotTo(HaveOccurred())
			Expect(entries).To(BeEmpty())
		})

		It("should release reports tracked by an earlier process", func() {
			leftover := writeReportFile("leftover.xlsx")
			_, err := registry.Track(leftover, nil)
			Expect(err).NotTo(HaveOccurred())
			Expect(registry.Close()).To(Succeed())

			registry, err = NewBoltRegistry(dbPath)
			Expect(err).NotTo(HaveOccurred())
			Expect(registry.Release()).To(Succeed())
			Expect(leftover).NotTo(BeAnExistingFile())
		})
	})
})
