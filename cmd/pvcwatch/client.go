package main

import (
	"k8s.io/client-go/dynamic"
	"k8s.io/client-go/kubernetes"
	"k8s.io/client-go/tools/clientcmd"
)

// clients bundles the API clients one run needs.
type clients struct {
	dynamic dynamic.Interface
	kube    kubernetes.Interface
	host    string
}

// getClientFunc creates the API clients. It can be overridden in tests to
// inject fakes.
var getClientFunc = defaultGetClient

// defaultGetClient resolves kubeconfig through the standard loading rules:
// the explicit path, KUBECONFIG, ~/.kube/config, then in-cluster config.
func defaultGetClient(kubeconfig string) (*clients, error) {
	rules := clientcmd.NewDefaultClientConfigLoadingRules()
	if kubeconfig != "" {
		rules.ExplicitPath = kubeconfig
	}
	config, err := clientcmd.NewNonInteractiveDeferredLoadingClientConfig(
		rules,
		&clientcmd.ConfigOverrides{},
	).ClientConfig()
	if err != nil {
		return nil, err
	}

	dyn, err := dynamic.NewForConfig(config)
	if err != nil {
		return nil, err
	}
	kube, err := kubernetes.NewForConfig(config)
	if err != nil {
		return nil, err
	}
	return &clients{dynamic: dyn, kube: kube, host: config.Host}, nil
}
