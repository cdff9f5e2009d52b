package smt

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strings"
	"time"
)

// Z3 runs queries through a z3 binary, one process per check.
type Z3 struct {
	path string
}

// NewZ3 returns a backend running the z3 at path, or "z3" from PATH when
// path is empty.
func NewZ3(path string) *Z3 {
	if path == "" {
		path = "z3"
	}
	return &Z3{path: path}
}

// Available reports whether the binary can be found.
func (z *Z3) Available() bool {
	_, err := exec.LookPath(z.path)
	return err == nil
}

func (z *Z3) Check(ctx context.Context, q Query) (Result, error) {
	if q.Timeout > 0 {
		// z3 honours :timeout itself; the grace period only reaps a hung
		// process.
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, q.Timeout+2*time.Second)
		defer cancel()
	}

	var stdout, stderr bytes.Buffer
	cmd := exec.CommandContext(ctx, z.path, "-in", "-smt2")
	cmd.Stdin = bytes.NewBufferString(q.Script())
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	runErr := cmd.Run()
	if ctx.Err() != nil {
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return Result{Status: Unknown}, nil
		}
		return Result{}, ctx.Err()
	}

	nodes, err := Parse(stdout.String())
	if err != nil {
		return Result{}, fmt.Errorf("z3 output: %w", err)
	}
	if len(nodes) == 0 {
		if runErr != nil {
			return Result{}, fmt.Errorf("z3: %w: %s", runErr, stderr.String())
		}
		return Result{}, fmt.Errorf("z3: empty output")
	}
	for _, n := range nodes {
		if n.Head() == "error" && len(n.List) > 1 && !modelUnavailable(n) {
			return Result{}, fmt.Errorf("z3: %s", n.List[1].Atom)
		}
	}

	res := Result{Status: Status(nodes[0].Atom)}
	switch res.Status {
	case Sat:
		model := findModel(nodes[1:])
		if model == nil {
			return Result{}, fmt.Errorf("z3: sat without a model")
		}
		res.Values, err = ParseModel(model)
		return res, err
	case Unsat, Unknown:
		return res, nil
	}
	return Result{}, fmt.Errorf("z3: unexpected answer %s", nodes[0])
}

// modelUnavailable matches the error get-model prints after unsat or
// unknown.
func modelUnavailable(n *Node) bool {
	return strings.Contains(n.List[1].Atom, "model is not available")
}

// findModel skips the objectives block z3 prints after an optimizing
// check-sat.
func findModel(nodes []*Node) *Node {
	for _, n := range nodes {
		if n.Head() == "model" {
			return n
		}
		if n.IsList() && (len(n.List) == 0 || n.List[0].Head() == "define-fun") {
			return n
		}
	}
	return nil
}
