package app

import "strings"

// branchSuffix marks branches produced by the healing pipeline.
const branchSuffix = "_AI_Fix"

// DeriveBranchName builds the deterministic git branch name for a run. When
// both team name and leader are present they are normalized and joined;
// otherwise the repository name alone is used. Pure: no randomness, no clock.
func DeriveBranchName(teamName, teamLeaderName, repoName string) string {
	team := normalizeToken(teamName)
	leader := normalizeToken(teamLeaderName)
	if team != "" && leader != "" {
		return team + "_" + leader + branchSuffix
	}
	return normalizeToken(repoName) + branchSuffix
}

// normalizeToken uppercases s and collapses every run of non-alphanumeric
// characters into a single underscore, with none left at the edges.
func normalizeToken(s string) string {
	var b strings.Builder
	pendingSep := false
	for _, r := range strings.ToUpper(strings.TrimSpace(s)) {
		alnum := (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9')
		if !alnum {
			pendingSep = b.Len() > 0
			continue
		}
		if pendingSep {
			b.WriteByte('_')
			pendingSep = false
		}
		b.WriteRune(r)
	}
	return b.String()
}
