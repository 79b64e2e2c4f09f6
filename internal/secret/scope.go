package secret

// Scope is an opaque VSTS permission-scope string submitted verbatim with a
// personal access token request. The service interprets it; this package
// only carries it.
type Scope string

// Well-known VSTS token scopes.
const (
	ScopeBuildAccess     Scope = "vso.build"
	ScopeBuildExecute    Scope = "vso.build_execute"
	ScopeCodeManage      Scope = "vso.code_manage"
	ScopeCodeRead        Scope = "vso.code"
	ScopeCodeWrite       Scope = "vso.code_write"
	ScopePackagingManage Scope = "vso.packaging_manage"
	ScopePackagingRead   Scope = "vso.packaging"
	ScopePackagingWrite  Scope = "vso.packaging_write"
	ScopeProfileRead     Scope = "vso.profile"
	ScopeTestRead        Scope = "vso.test"
	ScopeTestWrite       Scope = "vso.test_write"
	ScopeWorkRead        Scope = "vso.work"
	ScopeWorkWrite       Scope = "vso.work_write"
)

func (s Scope) String() string { return string(s) }
