package compose

import (
	"gopkg.in/yaml.v3"
)

// NamedService pairs a service definition with its key.
type NamedService struct {
	Name    string
	Service Service
}

// Services is an ordered service map. A plain Go map would be written in
// sorted key order; the descriptor keeps the gateway-first order instead.
type Services []NamedService

func (s Services) MarshalYAML() (any, error) {
	node := &yaml.Node{Kind: yaml.MappingNode}
	for _, ns := range s {
		var value yaml.Node
		if err := value.Encode(ns.Service); err != nil {
			return nil, err
		}
		node.Content = append(node.Content,
			&yaml.Node{Kind: yaml.ScalarNode, Tag: "!!str", Value: ns.Name},
			&value,
		)
	}
	return node, nil
}

func (s *Services) UnmarshalYAML(node *yaml.Node) error {
	if node.Kind != yaml.MappingNode {
		return &yaml.TypeError{Errors: []string{"services must be a mapping"}}
	}
	out := make(Services, 0, len(node.Content)/2)
	for i := 0; i+1 < len(node.Content); i += 2 {
		var svc Service
		if err := node.Content[i+1].Decode(&svc); err != nil {
			return err
		}
		out = append(out, NamedService{Name: node.Content[i].Value, Service: svc})
	}
	*s = out
	return nil
}

// Names returns service names in descriptor order.
func (s Services) Names() []string {
	names := make([]string, 0, len(s))
	for _, ns := range s {
		names = append(names, ns.Name)
	}
	return names
}
