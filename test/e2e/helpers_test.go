//go:build e2e
// +build e2e

package e2e

import (
	"bytes"
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
	corev1 "k8s.io/api/core/v1"
	"k8s.io/apimachinery/pkg/api/resource"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/apimachinery/pkg/util/rand"
	"k8s.io/client-go/kubernetes"

	"github.com/potooio/pvcwatch/internal/aggregator"
	"github.com/potooio/pvcwatch/internal/controller"
	"github.com/potooio/pvcwatch/internal/notifier"
	"github.com/potooio/pvcwatch/internal/quantity"
	"github.com/potooio/pvcwatch/internal/reporter"
	"github.com/potooio/pvcwatch/internal/source"
)

const (
	// testNamespacePrefix is the prefix for test namespace names.
	testNamespacePrefix = "pvcwatch-e2e-"

	// e2eLabel marks resources created by E2E tests for cleanup.
	e2eLabel = "pvcwatch-e2e"

	// defaultPollInterval is the default interval for polling loops.
	defaultPollInterval = 500 * time.Millisecond

	// defaultTimeout is the default timeout for wait operations.
	defaultTimeout = 60 * time.Second
)

// syncBuffer is a bytes.Buffer safe for one writer and concurrent readers.
type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

// waitForCondition polls until conditionFn returns true or the timeout expires.
func waitForCondition(t *testing.T, timeout, interval time.Duration, conditionFn func() (bool, error)) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		ok, err := conditionFn()
		if err != nil {
			t.Logf("waitForCondition: %v", err)
		}
		if ok {
			return
		}
		time.Sleep(interval)
	}
	t.Fatalf("waitForCondition: timed out after %v", timeout)
}

// waitForOutput waits until out contains want.
func waitForOutput(t *testing.T, out *syncBuffer, want string) {
	t.Helper()
	waitForCondition(t, defaultTimeout, defaultPollInterval, func() (bool, error) {
		return strings.Contains(out.String(), want), nil
	})
}

// createTestNamespace creates a uniquely named namespace and returns its
// name and a cleanup function.
func createTestNamespace(t *testing.T, clientset kubernetes.Interface) (string, func()) {
	t.Helper()
	name := testNamespacePrefix + rand.String(6)

	ns := &corev1.Namespace{
		ObjectMeta: metav1.ObjectMeta{
			Name: name,
			Labels: map[string]string{
				e2eLabel: "true",
			},
		},
	}
	_, err := clientset.CoreV1().Namespaces().Create(context.Background(), ns, metav1.CreateOptions{})
	require.NoError(t, err, "failed to create test namespace %s", name)
	t.Logf("Created test namespace: %s", name)

	cleanup := func() {
		t.Logf("Deleting test namespace: %s", name)
		err := clientset.CoreV1().Namespaces().Delete(context.Background(), name, metav1.DeleteOptions{})
		if err != nil {
			t.Logf("Warning: failed to delete namespace %s: %v", name, err)
		}
	}
	return name, cleanup
}

// createPVC creates a claim requesting size. It stays Pending when the
// cluster has no default storage class, which is fine for these tests.
func createPVC(t *testing.T, clientset kubernetes.Interface, namespace, name, size string) {
	t.Helper()
	pvc := &corev1.PersistentVolumeClaim{
		ObjectMeta: metav1.ObjectMeta{
			Name:      name,
			Namespace: namespace,
			Labels:    map[string]string{e2eLabel: "true"},
		},
		Spec: corev1.PersistentVolumeClaimSpec{
			AccessModes: []corev1.PersistentVolumeAccessMode{corev1.ReadWriteOnce},
			Resources: corev1.VolumeResourceRequirements{
				Requests: corev1.ResourceList{
					corev1.ResourceStorage: resource.MustParse(size),
				},
			},
		},
	}
	_, err := clientset.CoreV1().PersistentVolumeClaims(namespace).Create(context.Background(), pvc, metav1.CreateOptions{})
	require.NoError(t, err, "failed to create PVC %s/%s", namespace, name)
}

func deletePVC(t *testing.T, clientset kubernetes.Interface, namespace, name string) {
	t.Helper()
	err := clientset.CoreV1().PersistentVolumeClaims(namespace).Delete(context.Background(), name, metav1.DeleteOptions{})
	require.NoError(t, err, "failed to delete PVC %s/%s", namespace, name)
}

// startWatch runs a controller for namespace in the background and returns
// its output once the snapshot is loaded. The controller stops when the
// test ends.
func startWatch(t *testing.T, provider source.Provider, namespace, limit string, emitEvents bool) *syncBuffer {
	t.Helper()
	logger := zaptest.NewLogger(t)
	out := &syncBuffer{}

	opts := notifier.DefaultDispatcherOptions()
	opts.Namespace = namespace
	opts.EmitEvents = emitEvents
	dispatcher := notifier.NewDispatcher(sharedClientset, logger, opts)

	engine := aggregator.NewEngine(logger, quantity.MustParse(limit))
	rep := reporter.New(logger, out, reporter.WithColor(false))
	ctrl := controller.New(logger, provider, engine, rep, controller.Options{
		Host:      "e2e",
		Namespace: namespace,
		Notifier:  dispatcher,
	})

	ctx, cancel := context.WithCancel(context.Background())
	dispatcher.Start(ctx)
	done := make(chan error, 1)
	go func() { done <- ctrl.Run(ctx) }()

	t.Cleanup(func() {
		cancel()
		if err := <-done; err != nil {
			t.Errorf("controller returned error: %v", err)
		}
		dispatcher.Close()
	})

	waitForCondition(t, defaultTimeout, defaultPollInterval, func() (bool, error) {
		return ctrl.Ready(), nil
	})
	return out
}
