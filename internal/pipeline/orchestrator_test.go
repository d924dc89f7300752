package pipeline

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/moatazm17/PicDo-sub000/constants"
	"github.com/moatazm17/PicDo-sub000/internal/classify"
	"github.com/moatazm17/PicDo-sub000/internal/extract"
	"github.com/moatazm17/PicDo-sub000/internal/store"
)

func TestPipeline(t *testing.T) {
	slog.SetDefault(slog.New(slog.NewTextHandler(io.Discard, nil)))

	RegisterFailHandler(Fail)
	RunSpecs(t, "Pipeline Suite")
}

// fakeJobs tracks a single job's status machine in memory and records every
// status it passes through.
type fakeJobs struct {
	status   constants.JobStatus
	history  []constants.JobStatus
	ocrText  string
	thumb    string
	outcome  *store.ReadyOutcome
	errCode  string
	errMsg   string
	thumbErr error
}

func newFakeJobs() *fakeJobs {
	return &fakeJobs{
		status:  constants.JobStatusReceived,
		history: []constants.JobStatus{constants.JobStatusReceived},
	}
}

func (f *fakeJobs) set(s constants.JobStatus) {
	f.status = s
	f.history = append(f.history, s)
}

func (f *fakeJobs) Create(context.Context, *store.Job) error { return nil }
func (f *fakeJobs) Get(context.Context, string, string) (*store.Job, error) {
	return nil, store.ErrNotFound
}
func (f *fakeJobs) Delete(context.Context, string, string) error { return nil }

func (f *fakeJobs) Transition(_ context.Context, _ string, from, to constants.JobStatus) error {
	if f.status != from {
		return store.ErrStateConflict
	}
	f.set(to)
	return nil
}

func (f *fakeJobs) FinishOCR(_ context.Context, _ string, text string) error {
	if f.status != constants.JobStatusOCRInProgress {
		return store.ErrStateConflict
	}
	f.ocrText = text
	f.set(constants.JobStatusOCRDone)
	return nil
}

func (f *fakeJobs) MarkReady(_ context.Context, _ string, out store.ReadyOutcome) error {
	if f.status != constants.JobStatusAIInProgress {
		return store.ErrStateConflict
	}
	f.outcome = &out
	f.set(constants.JobStatusReady)
	return nil
}

func (f *fakeJobs) Fail(_ context.Context, _ string, code, message string) error {
	if f.status.IsTerminal() {
		return store.ErrStateConflict
	}
	f.errCode, f.errMsg = code, message
	f.set(constants.JobStatusFailed)
	return nil
}

func (f *fakeJobs) SetThumb(_ context.Context, _ string, thumb string) error {
	if f.thumbErr != nil {
		return f.thumbErr
	}
	f.thumb = thumb
	return nil
}

func (f *fakeJobs) UpdateFields(context.Context, string, string, map[string]*string, *string) (*store.Job, error) {
	return nil, store.ErrNotFound
}
func (f *fakeJobs) SetFavorite(context.Context, string, string, bool) error  { return nil }
func (f *fakeJobs) MarkAction(context.Context, string, string, bool, *string) error {
	return nil
}
func (f *fakeJobs) List(context.Context, string, int, *time.Time, string) ([]*store.Job, error) {
	return nil, nil
}
func (f *fakeJobs) CountReadyInWindow(context.Context, string, time.Time, time.Time) (int, error) {
	return 0, nil
}
func (f *fakeJobs) FailOrphans(context.Context, string, string) (int64, error) { return 0, nil }

type fakeImages struct {
	preprocessErr error
	thumbErr      error
}

func (f *fakeImages) Preprocess(data []byte) ([]byte, error) {
	if f.preprocessErr != nil {
		return nil, f.preprocessErr
	}
	return data, nil
}

func (f *fakeImages) Thumbnail([]byte) (string, error) {
	if f.thumbErr != nil {
		return "", f.thumbErr
	}
	return "dGh1bWI=", nil
}

type fakeExtractor struct {
	text string
	err  error
}

func (f *fakeExtractor) Extract(context.Context, []byte) (extract.Result, error) {
	if f.err != nil {
		return extract.Result{}, f.err
	}
	return extract.Result{Text: f.text, Method: "fake"}, nil
}

type fakeClassifier struct {
	result *classify.Result
	err    error
	calls  int
}

func (f *fakeClassifier) Classify(context.Context, string, string) (*classify.Result, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	return f.result, nil
}

var _ = Describe("Orchestrator", func() {
	var (
		jobs       *fakeJobs
		images     *fakeImages
		extractor  *fakeExtractor
		classifier *fakeClassifier
		orch       *Orchestrator
	)

	task := Task{JobID: "j1", OwnerID: "u1", Image: []byte("img"), Lang: "en"}

	BeforeEach(func() {
		jobs = newFakeJobs()
		images = &fakeImages{}
		extractor = &fakeExtractor{text: "Team Offsite\nJan 10 2025\nCairo"}
		classifier = &fakeClassifier{result: &classify.Result{
			Type:  "event",
			Title: "Team Offsite",
			Event: &classify.EventDetails{Date: "2025-01-10", Location: "Cairo"},
		}}
		orch = NewOrchestrator(jobs, images, extractor, classifier, nil)
	})

	It("walks the full status sequence to ready", func() {
		orch.Run(context.Background(), task)
		Expect(jobs.history).To(Equal([]constants.JobStatus{
			constants.JobStatusReceived,
			constants.JobStatusOCRInProgress,
			constants.JobStatusOCRDone,
			constants.JobStatusAIInProgress,
			constants.JobStatusReady,
		}))
		Expect(jobs.ocrText).To(ContainSubstring("Team Offsite"))
		Expect(jobs.outcome).NotTo(BeNil())
		Expect(jobs.outcome.Type).To(Equal(constants.Event))
		Expect(*jobs.outcome.Fields["date"]).To(Equal("2025-01-10"))
		Expect(*jobs.outcome.Fields["location"]).To(Equal("Cairo"))
	})

	It("fails without classifying when no text is detected", func() {
		extractor.err = extract.ErrNoText
		orch.Run(context.Background(), task)
		Expect(jobs.status).To(Equal(constants.JobStatusFailed))
		Expect(jobs.errCode).To(Equal("no_text_detected"))
		Expect(classifier.calls).To(BeZero())
	})

	It("fails on preprocessing errors", func() {
		images.preprocessErr = errors.New("corrupt frame")
		orch.Run(context.Background(), task)
		Expect(jobs.status).To(Equal(constants.JobStatusFailed))
		Expect(jobs.errCode).To(Equal("processing_failed"))
	})

	It("fails on classifier errors with the normalized code", func() {
		classifier.err = errors.New("rejected by content policy")
		orch.Run(context.Background(), task)
		Expect(jobs.status).To(Equal(constants.JobStatusFailed))
		Expect(jobs.errCode).To(Equal("inappropriate_content"))
	})

	It("fails when the classifier returns an unrecognized type", func() {
		classifier.result = &classify.Result{Type: "", Title: "x"}
		orch.Run(context.Background(), task)
		Expect(jobs.status).To(Equal(constants.JobStatusFailed))
		Expect(jobs.errCode).To(Equal("processing_failed"))
	})

	It("fails when no title can be derived", func() {
		classifier.result = &classify.Result{Type: "note"}
		orch.Run(context.Background(), task)
		Expect(jobs.status).To(Equal(constants.JobStatusFailed))
	})

	It("does not run when the job is no longer in received", func() {
		jobs.status = constants.JobStatusFailed
		orch.Run(context.Background(), task)
		Expect(jobs.history).To(HaveLen(1))
		Expect(classifier.calls).To(BeZero())
	})

	It("tolerates thumbnail failures", func() {
		t := task
		t.WantThumb = true
		images.thumbErr = errors.New("decode failed")
		orch.Run(context.Background(), t)
		Expect(jobs.status).To(Equal(constants.JobStatusReady))
		Expect(jobs.thumb).To(BeEmpty())
	})

	It("stores the thumbnail when requested", func() {
		t := task
		t.WantThumb = true
		orch.Run(context.Background(), t)
		Expect(jobs.status).To(Equal(constants.JobStatusReady))
		Expect(jobs.thumb).NotTo(BeEmpty())
	})
})
