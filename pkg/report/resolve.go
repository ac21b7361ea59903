package report

// rank orders outcomes by how strongly they represent a test. Lower wins.
// A test that eventually passed is reported by its passing observation, a
// test classified as flaky stays flaky even if an attempt failed, and
// skipped only wins when nothing else was observed.
func rank(o Outcome) int {
	switch o {
	case OutcomeExpected:
		return 0
	case OutcomeFlaky:
		return 1
	case OutcomeUnexpected:
		return 2
	case OutcomeSkipped:
		return 3
	default:
		return 4
	}
}

// Resolve reduces the observations of a run to one canonical result per test
// id. Ids keep the order in which they were first observed. Within an id the
// observation with the best rank wins and ties go to the earliest one.
func Resolve(observations []Result) []Result {
	order := make([]string, 0, len(observations))
	best := make(map[string]int, len(observations))

	for i, obs := range observations {
		cur, ok := best[obs.ID]
		if !ok {
			order = append(order, obs.ID)
			best[obs.ID] = i

			continue
		}

		if rank(obs.Outcome) < rank(observations[cur].Outcome) {
			best[obs.ID] = i
		}
	}

	resolved := make([]Result, 0, len(order))
	for _, id := range order {
		resolved = append(resolved, observations[best[id]])
	}

	return resolved
}
