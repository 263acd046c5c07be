// Package transporttest provides a scripted Runner for tests.
package transporttest

import (
	"context"
	"regexp"
	"strings"
	"sync"

	"github.com/AzozzALFiras/velo/internal/transport"
)

// Call records one command issued to a Fake
type Call struct {
	Command string
	Config  transport.RunConfig
}

type rule struct {
	substr string
	re     *regexp.Regexp
	result transport.CommandResult
	err    error
	times  int
}

func (r *rule) matches(cmd string) bool {
	if r.times == 0 {
		return false
	}
	if r.re != nil {
		return r.re.MatchString(cmd)
	}
	return strings.Contains(cmd, r.substr)
}

// Fake answers commands from an ordered list of rules. The first matching
// rule wins; unmatched commands exit 127 with "command not found", which is
// how an absent binary looks on a real host.
type Fake struct {
	mu    sync.Mutex
	rules []*rule
	calls []Call
}

// New creates an empty Fake
func New() *Fake {
	return &Fake{}
}

// Rule is returned by On/OnRegexp to configure the canned response
type Rule struct {
	r *rule
}

// On answers commands containing substr
func (f *Fake) On(substr string) *Rule {
	f.mu.Lock()
	defer f.mu.Unlock()
	r := &rule{substr: substr, times: -1}
	f.rules = append(f.rules, r)
	return &Rule{r: r}
}

// OnRegexp answers commands matching pattern
func (f *Fake) OnRegexp(pattern string) *Rule {
	f.mu.Lock()
	defer f.mu.Unlock()
	r := &rule{re: regexp.MustCompile(pattern), times: -1}
	f.rules = append(f.rules, r)
	return &Rule{r: r}
}

// Output sets the output and a zero exit code
func (r *Rule) Output(out string) *Rule {
	r.r.result.Output = out
	r.r.result.ExitCode = 0
	return r
}

// Exit sets the output and exit code
func (r *Rule) Exit(code int, out string) *Rule {
	r.r.result.Output = out
	r.r.result.ExitCode = code
	return r
}

// Fail makes the rule return a transport error
func (r *Rule) Fail(err error) *Rule {
	r.r.err = err
	return r
}

// Once limits the rule to a single match
func (r *Rule) Once() *Rule {
	r.r.times = 1
	return r
}

// Run implements transport.Runner
func (f *Fake) Run(ctx context.Context, command string, opts ...transport.RunOption) (transport.CommandResult, error) {
	cfg := transport.NewRunConfig(transport.DefaultTimeout, opts...)

	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, Call{Command: command, Config: cfg})

	if err := ctx.Err(); err != nil {
		return transport.CommandResult{Command: command, ExitCode: transport.ExitCanceled}, err
	}

	for _, r := range f.rules {
		if !r.matches(command) {
			continue
		}
		if r.times > 0 {
			r.times--
		}
		res := r.result
		res.Command = command
		return res, r.err
	}
	return transport.CommandResult{Command: command, ExitCode: 127, Output: "sh: command not found\n"}, nil
}

// Calls returns every command issued so far
func (f *Fake) Calls() []Call {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]Call, len(f.calls))
	copy(out, f.calls)
	return out
}

// Commands returns the command strings issued so far
func (f *Fake) Commands() []string {
	calls := f.Calls()
	out := make([]string, len(calls))
	for i, c := range calls {
		out[i] = c.Command
	}
	return out
}

// Ran reports whether any issued command contains substr
func (f *Fake) Ran(substr string) bool {
	for _, c := range f.Commands() {
		if strings.Contains(c, substr) {
			return true
		}
	}
	return false
}
