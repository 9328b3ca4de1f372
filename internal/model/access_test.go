package model

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAccessList_CheckReturnsDefaultWhenNoRuleMatches(t *testing.T) {
	list := AccessList[Privilege]{
		Default: PrivilegeDeny,
		Rules:   []Rule[Privilege]{{Subject: SubjectFor(Local("alice")), Verdict: PrivilegeAdmin}},
	}
	got := list.Check(Local("bob"), "example.org", time.Unix(0, 0))
	assert.Equal(t, PrivilegeDeny, got)
}

func TestAccessList_CheckFirstMatchWins(t *testing.T) {
	list := AccessList[Privilege]{
		Default: PrivilegeDeny,
		Rules: []Rule[Privilege]{
			{Subject: SubjectForDomain("example.org"), Verdict: PrivilegeAccess},
			{Subject: SubjectFor(Remote("alice", "sub.example.org")), Verdict: PrivilegeAdmin},
		},
	}
	got := list.Check(Remote("alice", "sub.example.org"), "local.test", time.Unix(0, 0))
	assert.Equal(t, PrivilegeAccess, got, "the earlier domain rule should win even though a later rule also matches")
}

func TestAccessList_CheckElidesExpiredRule(t *testing.T) {
	past := time.Unix(0, 0)
	list := AccessList[Privilege]{
		Default: PrivilegeDeny,
		Rules: []Rule[Privilege]{
			{Subject: SubjectFor(Local("alice")), Expiry: &past, Verdict: PrivilegeAdmin},
		},
	}
	now := time.Unix(1000, 0)
	got := list.Check(Local("alice"), "example.org", now)
	assert.Equal(t, PrivilegeDeny, got, "an expired rule must not be matched, even though its subject matches")
}

func TestAccessList_CheckHonoursUnexpiredRule(t *testing.T) {
	future := time.Unix(2000, 0)
	list := AccessList[Privilege]{
		Default: PrivilegeDeny,
		Rules: []Rule[Privilege]{
			{Subject: SubjectFor(Local("alice")), Expiry: &future, Verdict: PrivilegeAdmin},
		},
	}
	now := time.Unix(1000, 0)
	got := list.Check(Local("alice"), "example.org", now)
	assert.Equal(t, PrivilegeAdmin, got)
}

func TestAccessList_PruneRemovesOnlyExpiredRules(t *testing.T) {
	past := time.Unix(0, 0)
	future := time.Unix(2000, 0)
	list := AccessList[Privilege]{
		Default: PrivilegeDeny,
		Rules: []Rule[Privilege]{
			{Subject: SubjectFor(Local("alice")), Expiry: &past, Verdict: PrivilegeAdmin},
			{Subject: SubjectFor(Local("bob")), Expiry: &future, Verdict: PrivilegeAdmin},
			{Subject: SubjectFor(Local("carol")), Verdict: PrivilegeAccess}, // never expires
		},
	}
	now := time.Unix(1000, 0)
	pruned := list.Prune(now)

	require.Len(t, pruned.Rules, 2)
	var kept []string
	for _, r := range pruned.Rules {
		kept = append(kept, r.Subject.Principal.Name)
	}
	assert.ElementsMatch(t, []string{"bob", "carol"}, kept)
	assert.Equal(t, PrivilegeDeny, pruned.Default)
}
