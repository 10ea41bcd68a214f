package collect

// Register merges snapshot into existing without mutating it. A record with the same SCM name and the same set of
// remote URLs receives the new build entry and Register reports false; otherwise a new record is appended and
// Register reports true. New records are indexed from 2 onwards once the run already holds a record.
func Register(existing []BuildRecord, snapshot RepositorySnapshot, runNumber int, result BuildResult) ([]BuildRecord, bool) {
	candidate := BuildRecord{
		SCMName:    snapshot.SCMName,
		RemoteURLs: []string{snapshot.RemoteURL},
	}
	entry := BuildEntry{
		MarkedRevision: snapshot.MarkedRevision,
		BuiltRevision:  snapshot.BuiltRevision,
		RunNumber:      runNumber,
		Result:         ParseBuildResult(string(result)),
	}

	updated := cloneRecords(existing, 1)
	for recordIndex := range updated {
		if !updated[recordIndex].similarTo(candidate) {
			continue
		}
		updated[recordIndex].Builds = append(updated[recordIndex].Builds, entry)
		return updated, false
	}

	if len(existing) > 0 {
		candidate.Index = len(existing) + 1
	}
	candidate.Builds = []BuildEntry{entry}
	return append(updated, candidate), true
}

func (record BuildRecord) similarTo(other BuildRecord) bool {
	if record.SCMName != other.SCMName {
		return false
	}
	return sameURLSet(record.RemoteURLs, other.RemoteURLs)
}

func sameURLSet(first []string, second []string) bool {
	firstSet := make(map[string]struct{}, len(first))
	for _, remoteURL := range first {
		firstSet[remoteURL] = struct{}{}
	}
	secondSet := make(map[string]struct{}, len(second))
	for _, remoteURL := range second {
		if _, present := firstSet[remoteURL]; !present {
			return false
		}
		secondSet[remoteURL] = struct{}{}
	}
	return len(firstSet) == len(secondSet)
}

// cloneRecords deep copies records leaving room for extra appended records.
func cloneRecords(records []BuildRecord, extraCapacity int) []BuildRecord {
	cloned := make([]BuildRecord, len(records), len(records)+extraCapacity)
	for recordIndex, record := range records {
		record.RemoteURLs = append([]string(nil), record.RemoteURLs...)
		record.Builds = append(make([]BuildEntry, 0, len(record.Builds)+1), record.Builds...)
		cloned[recordIndex] = record
	}
	return cloned
}
