package chain

// TaskRef identifies one task in a rendered chain.
type TaskRef struct {
	TaskID string `json:"taskId" yaml:"taskId"`
}

// FeedingBuffer is the size of one feeding buffer at its merge point.
type FeedingBuffer struct {
	MergeTaskID   string `json:"mergeTaskId" yaml:"mergeTaskId"`
	BufferMinutes int    `json:"bufferMinutes" yaml:"bufferMinutes"`
}

// FeedingChainRef lists the tasks of one feeding chain.
type FeedingChainRef struct {
	MergeTaskID string    `json:"mergeTaskId" yaml:"mergeTaskId"`
	Tasks       []TaskRef `json:"tasks" yaml:"tasks"`
}

// Report is the output shape consumed by the request layer. Slices are
// never nil so they encode as [] rather than null.
type Report struct {
	ProjectBufferMinutes int               `json:"projectBufferMinutes" yaml:"projectBufferMinutes"`
	CriticalChain        []TaskRef         `json:"criticalChain" yaml:"criticalChain"`
	FeedingBuffers       []FeedingBuffer   `json:"feedingBuffers" yaml:"feedingBuffers"`
	FeedingChains        []FeedingChainRef `json:"feedingChains" yaml:"feedingChains"`
	Warnings             []Warning         `json:"warnings,omitempty" yaml:"warnings,omitempty"`
}

// Report converts the analysis to its output shape.
func (a *Analysis) Report() Report {
	r := Report{
		ProjectBufferMinutes: a.ProjectBufferMinutes,
		CriticalChain:        taskRefs(a.CriticalChain.TaskIDs),
		FeedingBuffers:       make([]FeedingBuffer, 0, len(a.FeedingChains)),
		FeedingChains:        make([]FeedingChainRef, 0, len(a.FeedingChains)),
		Warnings:             a.Warnings,
	}
	for _, fc := range a.FeedingChains {
		r.FeedingBuffers = append(r.FeedingBuffers, FeedingBuffer{
			MergeTaskID:   fc.MergeTaskID,
			BufferMinutes: fc.BufferMinutes,
		})
		r.FeedingChains = append(r.FeedingChains, FeedingChainRef{
			MergeTaskID: fc.MergeTaskID,
			Tasks:       taskRefs(fc.TaskIDs),
		})
	}
	return r
}

func taskRefs(ids []string) []TaskRef {
	out := make([]TaskRef, 0, len(ids))
	for _, id := range ids {
		out = append(out, TaskRef{TaskID: id})
	}
	return out
}
