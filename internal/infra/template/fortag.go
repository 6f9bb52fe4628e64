package template

import (
	"fmt"
	"reflect"

	"github.com/flosch/pongo2/v6"
)

// pongo2's builtin for tag renders nothing when its target is not iterable.
// This replacement behaves the same for slices, arrays, maps, strings and
// undefined values, and fails the render for anything else.
func init() {
	if err := pongo2.ReplaceTag("for", parseForTag); err != nil {
		panic(err)
	}
}

type forLoop struct {
	Counter     int
	Counter0    int
	Revcounter  int
	Revcounter0 int
	First       bool
	Last        bool
	Parentloop  *forLoop
}

type forNode struct {
	key      string
	value    string
	target   pongo2.IEvaluator
	reversed bool
	sorted   bool

	body  *pongo2.NodeWrapper
	empty *pongo2.NodeWrapper
}

func (n *forNode) Execute(ctx *pongo2.ExecutionContext, w pongo2.TemplateWriter) (forErr *pongo2.Error) {
	loopCtx := pongo2.NewChildExecutionContext(ctx)
	loop := &forLoop{First: true}
	if parent, ok := loopCtx.Private["forloop"].(*forLoop); ok {
		loop.Parentloop = parent
	}
	loopCtx.Private["forloop"] = loop

	obj, err := n.target.Evaluate(loopCtx)
	if err != nil {
		return err
	}
	if !iterable(obj) {
		return loopCtx.OrigError(
			fmt.Errorf("cannot iterate over value of type %T", obj.Interface()),
			n.target.GetPositionToken(),
		)
	}

	obj.IterateOrder(func(idx, count int, key, value *pongo2.Value) bool {
		loopCtx.Private[n.key] = key
		if value != nil {
			loopCtx.Private[n.value] = value
		}
		loop.Counter = idx + 1
		loop.Counter0 = idx
		loop.First = idx == 0
		loop.Last = idx+1 == count
		loop.Revcounter = count - idx
		loop.Revcounter0 = count - idx - 1

		if err := n.body.Execute(loopCtx, w); err != nil {
			forErr = err
			return false
		}
		return true
	}, func() {
		if n.empty != nil {
			forErr = n.empty.Execute(loopCtx, w)
		}
	}, n.reversed, n.sorted)

	return forErr
}

// iterable accepts nil so that a missing variable renders the empty branch.
func iterable(v *pongo2.Value) bool {
	if v.IsNil() {
		return true
	}
	switch reflect.Indirect(reflect.ValueOf(v.Interface())).Kind() {
	case reflect.Slice, reflect.Array, reflect.Map, reflect.String:
		return true
	}
	return false
}

// parseForTag accepts {% for x in xs [reversed] [sorted] %} and
// {% for k, v in m %} with an optional {% empty %} branch.
func parseForTag(doc *pongo2.Parser, _ *pongo2.Token, args *pongo2.Parser) (pongo2.INodeTag, *pongo2.Error) {
	node := &forNode{}

	keyToken := args.MatchType(pongo2.TokenIdentifier)
	if keyToken == nil {
		return nil, args.Error("Expected a key identifier as first argument for 'for'-tag", nil)
	}
	node.key = keyToken.Val

	if args.Match(pongo2.TokenSymbol, ",") != nil {
		valueToken := args.MatchType(pongo2.TokenIdentifier)
		if valueToken == nil {
			return nil, args.Error("Value name must be an identifier.", nil)
		}
		node.value = valueToken.Val
	}

	if args.Match(pongo2.TokenKeyword, "in") == nil {
		return nil, args.Error("Expected keyword 'in'.", nil)
	}

	target, err := args.ParseExpression()
	if err != nil {
		return nil, err
	}
	node.target = target

	if args.MatchOne(pongo2.TokenIdentifier, "reversed") != nil {
		node.reversed = true
	}
	if args.MatchOne(pongo2.TokenIdentifier, "sorted") != nil {
		node.sorted = true
	}
	if args.Remaining() > 0 {
		return nil, args.Error("Malformed for-loop arguments.", nil)
	}

	body, endArgs, err := doc.WrapUntilTag("empty", "endfor")
	if err != nil {
		return nil, err
	}
	if endArgs.Count() > 0 {
		return nil, endArgs.Error("Arguments not allowed here.", nil)
	}
	node.body = body

	if body.Endtag == "empty" {
		empty, endArgs, err := doc.WrapUntilTag("endfor")
		if err != nil {
			return nil, err
		}
		if endArgs.Count() > 0 {
			return nil, endArgs.Error("Arguments not allowed here.", nil)
		}
		node.empty = empty
	}
	return node, nil
}
