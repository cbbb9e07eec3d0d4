// Package discovery enumerates Kubernetes Services for reachability checks.
package discovery

import (
	"context"
	"fmt"

	"github.com/sirupsen/logrus"
	corev1 "k8s.io/api/core/v1"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/client-go/kubernetes"
)

// DefaultClusterDomain is the DNS suffix used for in-cluster service names.
const DefaultClusterDomain = "svc.cluster.local"

// ServiceDescriptor is a point-in-time view of a Service, rebuilt every cycle.
type ServiceDescriptor struct {
	Name      string
	Namespace string
	ClusterIP string  // empty for headless services
	Ports     []int32 // declared TCP ports, in Service.Spec.Ports order
}

// HasClusterIP reports whether the service has a routable virtual IP.
func (s ServiceDescriptor) HasClusterIP() bool {
	return s.ClusterIP != ""
}

// Hostname returns <name>.<namespace>.<domain>.
func (s ServiceDescriptor) Hostname(domain string) string {
	if domain == "" {
		domain = DefaultClusterDomain
	}
	return fmt.Sprintf("%s.%s.%s", s.Name, s.Namespace, domain)
}

// Key returns namespace/name.
func (s ServiceDescriptor) Key() string {
	return s.Namespace + "/" + s.Name
}

// Enumerator lists the services that should be checked.
type Enumerator interface {
	ListServices(ctx context.Context) ([]ServiceDescriptor, error)
}

// KubeEnumerator lists services through the Kubernetes API.
type KubeEnumerator struct {
	client        kubernetes.Interface
	namespace     string
	labelSelector string
	log           logrus.FieldLogger
}

// NewKubeEnumerator creates an enumerator. An empty namespace lists all namespaces.
func NewKubeEnumerator(client kubernetes.Interface, namespace, labelSelector string, log logrus.FieldLogger) *KubeEnumerator {
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &KubeEnumerator{
		client:        client,
		namespace:     namespace,
		labelSelector: labelSelector,
		log:           log,
	}
}

// ListServices implements Enumerator
func (e *KubeEnumerator) ListServices(ctx context.Context) ([]ServiceDescriptor, error) {
	list, err := e.client.CoreV1().Services(e.namespace).List(ctx, metav1.ListOptions{
		LabelSelector: e.labelSelector,
	})
	if err != nil {
		return nil, fmt.Errorf("list services: %w", err)
	}

	services := make([]ServiceDescriptor, 0, len(list.Items))
	for i := range list.Items {
		services = append(services, e.describe(&list.Items[i]))
	}
	return services, nil
}

// describe converts a Service into a descriptor, keeping only TCP ports.
func (e *KubeEnumerator) describe(svc *corev1.Service) ServiceDescriptor {
	desc := ServiceDescriptor{
		Name:      svc.Name,
		Namespace: svc.Namespace,
		Ports:     make([]int32, 0, len(svc.Spec.Ports)),
	}

	if ip := svc.Spec.ClusterIP; ip != "" && ip != corev1.ClusterIPNone {
		desc.ClusterIP = ip
	}

	for _, p := range svc.Spec.Ports {
		if p.Protocol != "" && p.Protocol != corev1.ProtocolTCP {
			e.log.WithFields(logrus.Fields{
				"service":  desc.Key(),
				"port":     p.Port,
				"protocol": p.Protocol,
			}).Warn("Skipping non-TCP port")
			continue
		}
		desc.Ports = append(desc.Ports, p.Port)
	}

	return desc
}
