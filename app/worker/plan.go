package worker

import "fmt"

type action string

const (
	actionFetch  action = "fetch_headlines"
	actionExpand action = "expand_headline"
)

// stage is one entry of a phase plan. An empty section means every section.
type stage struct {
	action  action
	section string
	count   int
}

// unit is the smallest piece of work the worker runs per iteration: one
// headline fetch for a section, or one headline expanded into an article.
type unit struct {
	action  action
	section string
	count   int
}

func (u unit) String() string {
	return fmt.Sprintf("%s(%s, %d)", u.action, u.section, u.count)
}

func (w *Worker) plan(phase Phase) []stage {
	switch phase {
	case PhaseInitial:
		stages := make([]stage, 0, 2*len(w.order))
		for _, name := range w.order {
			stages = append(stages,
				stage{action: actionFetch, section: name, count: w.cfg.MaxHeadlinesPerBatch},
				stage{action: actionExpand, section: name, count: w.cfg.InitialExpandCount},
			)
		}
		return stages

	case PhaseCreation:
		stages := make([]stage, 0, 2*len(w.cfg.CreationBatches))
		for _, batch := range w.cfg.CreationBatches {
			stages = append(stages,
				stage{action: actionExpand, count: batch},
				stage{action: actionFetch, count: w.cfg.MaxHeadlinesPerBatch},
			)
		}
		return stages

	case PhaseRefresh:
		return []stage{
			{action: actionExpand, count: w.cfg.RefreshBatch},
			{action: actionFetch, count: w.cfg.MaxHeadlinesPerBatch},
		}
	}

	return nil
}

// units expands a stage into per-section units. Expansion interleaves the
// sections so a partially completed stage spreads articles evenly.
func (w *Worker) units(st stage) []unit {
	sections := w.order
	if st.section != "" {
		sections = []string{st.section}
	}

	switch st.action {
	case actionFetch:
		units := make([]unit, 0, len(sections))
		for _, name := range sections {
			units = append(units, unit{action: actionFetch, section: name, count: st.count})
		}
		return units

	case actionExpand:
		units := make([]unit, 0, st.count*len(sections))
		for i := 0; i < st.count; i++ {
			for _, name := range sections {
				units = append(units, unit{action: actionExpand, section: name, count: 1})
			}
		}
		return units
	}

	return nil
}

// needed reports whether a unit would do useful work. Skipped units cost no
// upstream calls.
func (w *Worker) needed(phase Phase, u unit) bool {
	articles := w.sections.ArticleCount(u.section)
	headlines := w.sections.HeadlineCount(u.section)

	switch u.action {
	case actionExpand:
		if phase == PhaseInitial {
			return articles < w.cfg.InitialArticleTarget && !w.sections.Full(u.section)
		}
		return !w.sections.Full(u.section)

	case actionFetch:
		if phase == PhaseInitial {
			missing := w.cfg.InitialArticleTarget - articles
			return missing > 0 && headlines < missing
		}
		remaining := w.sections.MaxArticles() - articles
		return remaining > 0 && headlines < remaining
	}

	return false
}
