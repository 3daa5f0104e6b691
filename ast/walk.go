package ast

// Children returns the node's body lists. Attribute bodies reached through
// named attributes are included, since their output is generated inline
// with the owning tag.
func Children(n Node) []*NodeList {
	switch t := n.(type) {
	case *Root:
		return []*NodeList{t.Body}
	case *IncludeAction:
		return []*NodeList{t.Body}
	case *ForwardAction:
		return []*NodeList{t.Body}
	case *Param:
		return []*NodeList{t.Body}
	case *UseObject:
		return []*NodeList{t.Body}
	case *NamedAttribute:
		return []*NodeList{t.Body}
	case *TagBody:
		return []*NodeList{t.Body}
	case *Element:
		return []*NodeList{t.Body}
	case *UninterpretedTag:
		return []*NodeList{t.Body}
	case *CustomTag:
		return []*NodeList{t.Body}
	}
	return nil
}

// Walk visits n and every node below it, depth first. The visitor returns
// false to prune the subtree.
func Walk(n Node, visit func(Node) bool) {
	if n == nil || !visit(n) {
		return
	}
	for _, list := range Children(n) {
		WalkList(list, visit)
	}
}

// WalkList visits every node of the list with Walk.
func WalkList(list *NodeList, visit func(Node) bool) {
	if list == nil {
		return
	}
	for _, c := range list.Nodes {
		Walk(c, visit)
	}
}
