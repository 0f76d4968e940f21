package sandbox

import (
	"fmt"
	"strings"

	"github.com/yuin/gopher-lua/ast"
	"github.com/yuin/gopher-lua/parse"

	"dungeon-skill-sandbox/internal/game"
)

// HandleGlobal is the name the capability handle is bound to inside the
// restricted namespace and the name fragments call methods on.
const HandleGlobal = "game"

// allowedModules may be required by fragments; the namespace shim returns
// the pre-injected equivalents.
var allowedModules = map[string]struct{}{
	"math":   {},
	"string": {},
	"table":  {},
	"game":   {},
}

// forbiddenModulePrefixes reject a require by its first path segment.
var forbiddenModulePrefixes = map[string]struct{}{
	"os": {}, "io": {}, "package": {}, "debug": {}, "coroutine": {},
	"channel": {}, "ffi": {}, "jit": {}, "socket": {}, "net": {},
	"http": {}, "lfs": {}, "posix": {}, "process": {}, "signal": {},
	"syscall": {},
}

// forbiddenCalls are the dynamic-loading and reflection entry points.
// They are also stripped from the namespace; rejecting them statically
// gives the agent a line number instead of a runtime nil-call error.
var forbiddenCalls = map[string]struct{}{
	"load": {}, "loadstring": {}, "loadfile": {}, "dofile": {},
	"setfenv": {}, "getfenv": {}, "setmetatable": {}, "getmetatable": {},
	"collectgarbage": {}, "module": {}, "newproxy": {},
}

// rawAccessors defeat the metatables the capability proxy is built on.
var rawAccessors = map[string]struct{}{
	"rawget": {}, "rawset": {}, "rawequal": {}, "rawlen": {},
}

// forbiddenMethodNames are rejected as method or member calls regardless
// of the receiver; no capability object legitimately exposes them.
var forbiddenMethodNames = map[string]struct{}{
	"execute": {}, "popen": {}, "spawn": {}, "fork": {},
	"exit": {}, "kill": {}, "getenv": {}, "setenv": {},
}

// forbiddenMembers is the reflective surface no fragment may touch,
// whether spelled a.b or a["b"].
var forbiddenMembers = map[string]struct{}{
	"_G": {}, "_ENV": {}, "__index": {}, "__newindex": {},
	"__metatable": {}, "__call": {}, "__mode": {}, "__gc": {},
	"__close": {}, "__name": {}, "__environment": {}, "__func": {},
}

// Validator statically checks fragments without executing them.
type Validator struct{}

func NewValidator() *Validator {
	return &Validator{}
}

// Validate parses and walks the fragment. The walk aborts at the first
// violation; warnings accumulate and never fail validation.
func (v *Validator) Validate(sub Submission) ValidationResult {
	res := ValidationResult{Valid: true}

	chunk, err := parse.Parse(strings.NewReader(sub.Source), "fragment")
	if err != nil {
		res.Valid = false
		res.Errors = append(res.Errors, parseViolation(err))
		return res
	}

	w := &walker{res: &res}
	w.stmts(chunk)
	if w.violation != nil {
		res.Valid = false
		res.Errors = append(res.Errors, *w.violation)
		return res
	}

	if sub.Mode == ModeNamed {
		checkEntry(chunk, sub.EntryName, &res)
	}
	return res
}

func parseViolation(err error) Violation {
	if pe, ok := err.(*parse.Error); ok {
		return Violation{Category: "syntax", Detail: pe.Message, Line: pe.Pos.Line}
	}
	return Violation{Category: "syntax", Detail: err.Error()}
}

// checkEntry looks for a top-level function with at least one parameter.
// A matching name wins; otherwise the first global function is used as a
// fallback and a warning is recorded. No function at all is an error.
func checkEntry(chunk []ast.Stmt, entryName string, res *ValidationResult) {
	type candidate struct {
		name  string
		sigOK bool
	}
	var fallback *candidate

	consider := func(name string, fn *ast.FunctionExpr) {
		sigOK := len(fn.ParList.Names) >= 1 || fn.ParList.HasVargs
		if name == entryName {
			res.EntryNameFound = true
			res.SignatureOK = sigOK
			res.ResolvedEntry = name
			if !sigOK {
				res.Warnings = append(res.Warnings, fmt.Sprintf(
					"entry function %q takes no parameters; it will not receive the game handle", name))
			}
			return
		}
		if fallback == nil {
			fallback = &candidate{name: name, sigOK: sigOK}
		}
	}

	for _, st := range chunk {
		if res.EntryNameFound {
			return
		}
		switch s := st.(type) {
		case *ast.FuncDefStmt:
			if s.Name == nil || s.Name.Method != "" || s.Name.Receiver != nil {
				continue
			}
			ident, ok := s.Name.Func.(*ast.IdentExpr)
			if !ok {
				continue
			}
			consider(ident.Value, s.Func)
		case *ast.AssignStmt:
			for i, lhs := range s.Lhs {
				ident, ok := lhs.(*ast.IdentExpr)
				if !ok || i >= len(s.Rhs) {
					continue
				}
				if fn, ok := s.Rhs[i].(*ast.FunctionExpr); ok {
					consider(ident.Value, fn)
				}
			}
		}
	}

	if res.EntryNameFound {
		return
	}
	if fallback != nil {
		res.SignatureOK = fallback.sigOK
		res.ResolvedEntry = fallback.name
		res.Warnings = append(res.Warnings, fmt.Sprintf(
			"entry function %q not found; %q will be called instead", entryName, fallback.name))
		return
	}
	res.Valid = false
	res.Errors = append(res.Errors, Violation{
		Category: "entry",
		Detail:   fmt.Sprintf("no top-level function found for entry %q", entryName),
	})
}

// walker visits every statement and expression, stopping at the first
// violation.
type walker struct {
	res       *ValidationResult
	violation *Violation
}

func (w *walker) done() bool { return w.violation != nil }

func (w *walker) violate(category, detail string, line int) {
	if w.violation == nil {
		w.violation = &Violation{Category: category, Detail: detail, Line: line}
	}
}

func (w *walker) warn(msg string) {
	for _, existing := range w.res.Warnings {
		if existing == msg {
			return
		}
	}
	w.res.Warnings = append(w.res.Warnings, msg)
}

func (w *walker) stmts(list []ast.Stmt) {
	for _, st := range list {
		if w.done() {
			return
		}
		w.stmt(st)
	}
}

func (w *walker) stmt(st ast.Stmt) {
	switch s := st.(type) {
	case *ast.AssignStmt:
		w.exprs(s.Lhs)
		w.exprs(s.Rhs)
	case *ast.LocalAssignStmt:
		w.exprs(s.Exprs)
	case *ast.FuncCallStmt:
		w.expr(s.Expr)
	case *ast.DoBlockStmt:
		w.stmts(s.Stmts)
	case *ast.WhileStmt:
		w.expr(s.Condition)
		w.stmts(s.Stmts)
	case *ast.RepeatStmt:
		w.expr(s.Condition)
		w.stmts(s.Stmts)
	case *ast.IfStmt:
		w.expr(s.Condition)
		w.stmts(s.Then)
		w.stmts(s.Else)
	case *ast.NumberForStmt:
		w.expr(s.Init)
		w.expr(s.Limit)
		w.expr(s.Step)
		w.stmts(s.Stmts)
	case *ast.GenericForStmt:
		w.exprs(s.Exprs)
		w.stmts(s.Stmts)
	case *ast.FuncDefStmt:
		if s.Name != nil {
			w.expr(s.Name.Func)
			w.expr(s.Name.Receiver)
		}
		w.expr(s.Func)
	case *ast.ReturnStmt:
		w.exprs(s.Exprs)
	}
}

func (w *walker) exprs(list []ast.Expr) {
	for _, e := range list {
		if w.done() {
			return
		}
		w.expr(e)
	}
}

func (w *walker) expr(e ast.Expr) {
	if e == nil || w.done() {
		return
	}
	switch ex := e.(type) {
	case *ast.AttrGetExpr:
		if key, ok := ex.Key.(*ast.StringExpr); ok {
			if _, bad := forbiddenMembers[key.Value]; bad {
				w.violate("attribute",
					fmt.Sprintf("access to forbidden member %q", key.Value), ex.Line())
				return
			}
		}
		w.expr(ex.Object)
		w.expr(ex.Key)
	case *ast.FuncCallExpr:
		w.call(ex)
	case *ast.FunctionExpr:
		w.stmts(ex.Stmts)
	case *ast.TableExpr:
		for _, f := range ex.Fields {
			w.expr(f.Key)
			w.expr(f.Value)
		}
	case *ast.LogicalOpExpr:
		w.expr(ex.Lhs)
		w.expr(ex.Rhs)
	case *ast.RelationalOpExpr:
		w.expr(ex.Lhs)
		w.expr(ex.Rhs)
	case *ast.StringConcatOpExpr:
		w.expr(ex.Lhs)
		w.expr(ex.Rhs)
	case *ast.ArithmeticOpExpr:
		w.expr(ex.Lhs)
		w.expr(ex.Rhs)
	case *ast.UnaryMinusOpExpr:
		w.expr(ex.Expr)
	case *ast.UnaryNotOpExpr:
		w.expr(ex.Expr)
	case *ast.UnaryLenOpExpr:
		w.expr(ex.Expr)
	}
}

func (w *walker) call(c *ast.FuncCallExpr) {
	line := c.Line()

	// Method-style call: recv:name(args).
	if c.Method != "" {
		if _, bad := forbiddenMethodNames[c.Method]; bad {
			w.violate("call",
				fmt.Sprintf("call to forbidden method %q", c.Method), line)
			return
		}
		if _, bad := forbiddenMembers[c.Method]; bad {
			w.violate("attribute",
				fmt.Sprintf("access to forbidden member %q", c.Method), line)
			return
		}
		w.checkHandleMethod(c.Receiver, c.Method)
		w.expr(c.Receiver)
		w.exprs(c.Args)
		return
	}

	switch fn := c.Func.(type) {
	case *ast.IdentExpr:
		name := fn.Value
		if name == "require" {
			w.requireCall(c, line)
			return
		}
		if _, bad := forbiddenCalls[name]; bad {
			w.violate("call",
				fmt.Sprintf("call to forbidden function %q", name), line)
			return
		}
		if _, raw := rawAccessors[name]; raw {
			if (name == "rawget" || name == "rawset") && len(c.Args) >= 2 {
				if key, ok := c.Args[1].(*ast.StringExpr); ok {
					if _, bad := forbiddenMembers[key.Value]; bad {
						w.violate("subscript",
							fmt.Sprintf("raw access to forbidden member %q", key.Value), line)
						return
					}
				}
			}
			w.violate("call",
				fmt.Sprintf("call to forbidden function %q", name), line)
			return
		}
	case *ast.AttrGetExpr:
		// Dot-form call: recv.name(args). The AttrGetExpr itself is checked
		// when w.expr(c.Func) recurses; here only the callable name rules.
		if key, ok := fn.Key.(*ast.StringExpr); ok {
			if _, bad := forbiddenMethodNames[key.Value]; bad {
				w.violate("call",
					fmt.Sprintf("call to forbidden method %q", key.Value), line)
				return
			}
			w.checkHandleMethod(fn.Object, key.Value)
		}
	}

	w.expr(c.Func)
	w.exprs(c.Args)
}

// checkHandleMethod warns about calls on the game handle whose name is in
// neither catalog. They would fail at runtime; the warning lets the agent
// fix the fragment before spending a run.
func (w *walker) checkHandleMethod(receiver ast.Expr, method string) {
	ident, ok := receiver.(*ast.IdentExpr)
	if !ok || ident.Value != HandleGlobal {
		return
	}
	if !game.IsKnownMethod(method) {
		w.warn(fmt.Sprintf("unknown capability method %q on %s", method, HandleGlobal))
	}
}

func (w *walker) requireCall(c *ast.FuncCallExpr, line int) {
	if len(c.Args) == 0 {
		w.violate("import", "require with no module name", line)
		return
	}
	str, ok := c.Args[0].(*ast.StringExpr)
	if !ok {
		w.violate("import", "require with a non-constant module name", line)
		return
	}
	mod := str.Value
	if _, ok := allowedModules[mod]; ok {
		return
	}
	root := mod
	if i := strings.IndexAny(mod, "./"); i >= 0 {
		root = mod[:i]
	}
	if _, bad := forbiddenModulePrefixes[root]; bad {
		w.violate("import",
			fmt.Sprintf("import of forbidden module %q", mod), line)
		return
	}
	w.warn(fmt.Sprintf("import of unknown module %q (it will not be available)", mod))
}
