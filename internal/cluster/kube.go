package cluster

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/rahul/kubeask/internal/intent"
	corev1 "k8s.io/api/core/v1"
	"k8s.io/apimachinery/pkg/api/resource"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/client-go/kubernetes"
	"k8s.io/client-go/rest"
	"k8s.io/client-go/tools/clientcmd"
	metricsv1beta1 "k8s.io/metrics/pkg/apis/metrics/v1beta1"
	metricsclient "k8s.io/metrics/pkg/client/clientset/versioned"
)

// KubeConfig selects the credentials source for the API server.
type KubeConfig struct {
	InCluster  bool
	Kubeconfig string
	Context    string
	Timeout    time.Duration
	QPS        float32
	Burst      int
	Metrics    bool
}

// KubeClient implements Client over client-go.
type KubeClient struct {
	core    kubernetes.Interface
	metrics metricsclient.Interface
}

// NewKubeClient builds clients from in-cluster credentials or a kubeconfig.
// The metrics client is only created when cfg.Metrics is set.
func NewKubeClient(cfg KubeConfig) (*KubeClient, error) {
	restCfg, err := restConfig(cfg)
	if err != nil {
		return nil, err
	}
	if cfg.Timeout > 0 {
		restCfg.Timeout = cfg.Timeout
	}
	if cfg.QPS > 0 {
		restCfg.QPS = cfg.QPS
	}
	if cfg.Burst > 0 {
		restCfg.Burst = cfg.Burst
	}
	restCfg.UserAgent = "kubeask"

	core, err := kubernetes.NewForConfig(restCfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create kubernetes client: %w", err)
	}

	var metrics metricsclient.Interface
	if cfg.Metrics {
		metrics, err = metricsclient.NewForConfig(restCfg)
		if err != nil {
			return nil, fmt.Errorf("failed to create metrics client: %w", err)
		}
	}
	return NewKubeClientFromInterfaces(core, metrics), nil
}

// NewKubeClientFromInterfaces wraps existing clientsets. metrics may be nil.
func NewKubeClientFromInterfaces(core kubernetes.Interface, metrics metricsclient.Interface) *KubeClient {
	return &KubeClient{core: core, metrics: metrics}
}

func restConfig(cfg KubeConfig) (*rest.Config, error) {
	if cfg.InCluster {
		c, err := rest.InClusterConfig()
		if err != nil {
			return nil, fmt.Errorf("failed to load in-cluster config: %w", err)
		}
		return c, nil
	}

	rules := clientcmd.NewDefaultClientConfigLoadingRules()
	if cfg.Kubeconfig != "" {
		rules.ExplicitPath = cfg.Kubeconfig
	}
	overrides := &clientcmd.ConfigOverrides{CurrentContext: cfg.Context}
	c, err := clientcmd.NewNonInteractiveDeferredLoadingClientConfig(rules, overrides).ClientConfig()
	if err != nil {
		return nil, fmt.Errorf("failed to load kubeconfig: %w", err)
	}
	return c, nil
}

func (k *KubeClient) HasMetrics() bool {
	return k.metrics != nil
}

func (k *KubeClient) List(ctx context.Context, res intent.Resource, ns string, opts ListOptions) ([]string, error) {
	lo := metav1.ListOptions{LabelSelector: opts.LabelSelector}

	switch res.Canonical() {
	case intent.ResourceNamespaces:
		list, err := k.core.CoreV1().Namespaces().List(ctx, lo)
		if err != nil {
			return nil, err
		}
		names := make([]string, 0, len(list.Items))
		for _, item := range list.Items {
			names = append(names, item.Name)
		}
		return sorted(names), nil

	case intent.ResourceNodes:
		list, err := k.core.CoreV1().Nodes().List(ctx, lo)
		if err != nil {
			return nil, err
		}
		names := make([]string, 0, len(list.Items))
		for _, item := range list.Items {
			names = append(names, item.Name)
		}
		return sorted(names), nil

	case intent.ResourcePods:
		list, err := k.core.CoreV1().Pods(ns).List(ctx, lo)
		if err != nil {
			return nil, err
		}
		names := make([]string, 0, len(list.Items))
		for _, item := range list.Items {
			names = append(names, item.Name)
		}
		return sorted(names), nil

	case intent.ResourceServices:
		list, err := k.core.CoreV1().Services(ns).List(ctx, lo)
		if err != nil {
			return nil, err
		}
		names := make([]string, 0, len(list.Items))
		for _, item := range list.Items {
			names = append(names, item.Name)
		}
		return sorted(names), nil

	case intent.ResourceDeployments:
		list, err := k.core.AppsV1().Deployments(ns).List(ctx, lo)
		if err != nil {
			return nil, err
		}
		names := make([]string, 0, len(list.Items))
		for _, item := range list.Items {
			names = append(names, item.Name)
		}
		return sorted(names), nil

	case intent.ResourceEvents:
		list, err := k.core.CoreV1().Events(ns).List(ctx, lo)
		if err != nil {
			return nil, err
		}
		items := list.Items
		sort.SliceStable(items, func(i, j int) bool {
			return eventTime(items[i]).Before(eventTime(items[j]))
		})
		lines := make([]string, 0, len(items))
		for _, ev := range items {
			lines = append(lines, fmt.Sprintf("%s %s %s/%s: %s",
				ev.Type, ev.Reason, strings.ToLower(ev.InvolvedObject.Kind), ev.InvolvedObject.Name,
				strings.TrimSpace(ev.Message)))
		}
		return lines, nil
	}
	return nil, fmt.Errorf("list of %s is not supported", res)
}

func eventTime(ev corev1.Event) time.Time {
	switch {
	case !ev.LastTimestamp.IsZero():
		return ev.LastTimestamp.Time
	case !ev.EventTime.IsZero():
		return ev.EventTime.Time
	}
	return ev.CreationTimestamp.Time
}

func sorted(names []string) []string {
	sort.Strings(names)
	return names
}

func (k *KubeClient) Describe(ctx context.Context, res intent.Resource, ns, name string) (map[string]any, error) {
	switch res.Canonical() {
	case intent.ResourcePods:
		pod, err := k.core.CoreV1().Pods(ns).Get(ctx, name, metav1.GetOptions{})
		if err != nil {
			return nil, err
		}
		containers := make([]map[string]any, 0, len(pod.Status.ContainerStatuses))
		for _, cs := range pod.Status.ContainerStatuses {
			containers = append(containers, map[string]any{
				"name":     cs.Name,
				"image":    cs.Image,
				"ready":    cs.Ready,
				"restarts": cs.RestartCount,
				"state":    containerState(cs.State),
			})
		}
		return map[string]any{
			"name":       pod.Name,
			"namespace":  pod.Namespace,
			"phase":      string(pod.Status.Phase),
			"node":       pod.Spec.NodeName,
			"ip":         pod.Status.PodIP,
			"labels":     pod.Labels,
			"containers": containers,
		}, nil

	case intent.ResourceNodes:
		node, err := k.core.CoreV1().Nodes().Get(ctx, name, metav1.GetOptions{})
		if err != nil {
			return nil, err
		}
		ready := "Unknown"
		for _, c := range node.Status.Conditions {
			if c.Type == corev1.NodeReady {
				ready = string(c.Status)
			}
		}
		addresses := make(map[string]string, len(node.Status.Addresses))
		for _, a := range node.Status.Addresses {
			addresses[string(a.Type)] = a.Address
		}
		return map[string]any{
			"name":            node.Name,
			"ready":           ready,
			"unschedulable":   node.Spec.Unschedulable,
			"kubelet_version": node.Status.NodeInfo.KubeletVersion,
			"os_image":        node.Status.NodeInfo.OSImage,
			"addresses":       addresses,
			"cpu":             node.Status.Capacity.Cpu().String(),
			"memory":          node.Status.Capacity.Memory().String(),
			"labels":          node.Labels,
		}, nil

	case intent.ResourceServices:
		svc, err := k.core.CoreV1().Services(ns).Get(ctx, name, metav1.GetOptions{})
		if err != nil {
			return nil, err
		}
		ports := make([]string, 0, len(svc.Spec.Ports))
		for _, p := range svc.Spec.Ports {
			ports = append(ports, fmt.Sprintf("%d->%s/%s", p.Port, p.TargetPort.String(), p.Protocol))
		}
		return map[string]any{
			"name":       svc.Name,
			"namespace":  svc.Namespace,
			"type":       string(svc.Spec.Type),
			"cluster_ip": svc.Spec.ClusterIP,
			"ports":      ports,
			"selector":   svc.Spec.Selector,
		}, nil

	case intent.ResourceDeployments:
		dep, err := k.core.AppsV1().Deployments(ns).Get(ctx, name, metav1.GetOptions{})
		if err != nil {
			return nil, err
		}
		var desired int32 = 1
		if dep.Spec.Replicas != nil {
			desired = *dep.Spec.Replicas
		}
		images := make([]string, 0, len(dep.Spec.Template.Spec.Containers))
		for _, c := range dep.Spec.Template.Spec.Containers {
			images = append(images, c.Image)
		}
		return map[string]any{
			"name":      dep.Name,
			"namespace": dep.Namespace,
			"replicas":  desired,
			"ready":     dep.Status.ReadyReplicas,
			"updated":   dep.Status.UpdatedReplicas,
			"available": dep.Status.AvailableReplicas,
			"strategy":  string(dep.Spec.Strategy.Type),
			"images":    images,
		}, nil

	case intent.ResourceNamespaces:
		nsObj, err := k.core.CoreV1().Namespaces().Get(ctx, name, metav1.GetOptions{})
		if err != nil {
			return nil, err
		}
		return map[string]any{
			"name":   nsObj.Name,
			"phase":  string(nsObj.Status.Phase),
			"labels": nsObj.Labels,
		}, nil
	}
	return nil, fmt.Errorf("describe of %s is not supported", res)
}

func containerState(s corev1.ContainerState) string {
	switch {
	case s.Running != nil:
		return "running"
	case s.Waiting != nil:
		return "waiting: " + s.Waiting.Reason
	case s.Terminated != nil:
		return "terminated: " + s.Terminated.Reason
	}
	return "unknown"
}

func (k *KubeClient) Logs(ctx context.Context, ns, pod string, opts LogOptions) (string, error) {
	tail := int64(opts.TailLines)
	req := k.core.CoreV1().Pods(ns).GetLogs(pod, &corev1.PodLogOptions{
		Container: opts.Container,
		TailLines: &tail,
		Previous:  opts.Previous,
	})
	raw, err := req.DoRaw(ctx)
	if err != nil {
		return "", err
	}
	return string(raw), nil
}

func (k *KubeClient) Top(ctx context.Context, res intent.Resource, ns string) ([]intent.Usage, error) {
	if k.metrics == nil {
		return nil, fmt.Errorf("metrics client is not configured")
	}

	switch res.Canonical() {
	case intent.ResourcePods:
		list, err := k.metrics.MetricsV1beta1().PodMetricses(ns).List(ctx, metav1.ListOptions{})
		if err != nil {
			return nil, err
		}
		out := make([]intent.Usage, 0, len(list.Items))
		for _, pm := range list.Items {
			out = append(out, podUsage(pm))
		}
		sort.Slice(out, func(i, j int) bool {
			if out[i].Namespace != out[j].Namespace {
				return out[i].Namespace < out[j].Namespace
			}
			return out[i].Name < out[j].Name
		})
		return out, nil

	case intent.ResourceNodes:
		list, err := k.metrics.MetricsV1beta1().NodeMetricses().List(ctx, metav1.ListOptions{})
		if err != nil {
			return nil, err
		}
		out := make([]intent.Usage, 0, len(list.Items))
		for _, nm := range list.Items {
			out = append(out, intent.Usage{
				Name:   nm.Name,
				CPU:    nm.Usage.Cpu().String(),
				Memory: formatMemory(*nm.Usage.Memory()),
			})
		}
		sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
		return out, nil
	}
	return nil, fmt.Errorf("top of %s is not supported", res)
}

func podUsage(pm metricsv1beta1.PodMetrics) intent.Usage {
	cpu := resource.NewMilliQuantity(0, resource.DecimalSI)
	mem := resource.NewQuantity(0, resource.BinarySI)
	for _, c := range pm.Containers {
		cpu.Add(*c.Usage.Cpu())
		mem.Add(*c.Usage.Memory())
	}
	return intent.Usage{
		Name:      pm.Name,
		Namespace: pm.Namespace,
		CPU:       cpu.String(),
		Memory:    formatMemory(*mem),
	}
}

func formatMemory(q resource.Quantity) string {
	return fmt.Sprintf("%dMi", q.Value()/(1024*1024))
}
