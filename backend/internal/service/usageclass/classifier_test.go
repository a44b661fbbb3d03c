package usageclass

import (
	"testing"

	"traceability-explorer/backend/internal/domain/audit"
)

// TestClassify 覆盖 SAS、SLC 与无法判定三类输入。
func TestClassify(t *testing.T) {
	cases := []struct {
		name string
		text string
		want audit.UsageClass
	}{
		{name: "bare sas word", text: "sas", want: audit.ClassSAS},
		{name: "proc step", text: "proc sort data=x; run;", want: audit.ClassSAS},
		{name: "libname statement", text: "LIBNAME mylib '/data';", want: audit.ClassSAS},
		{name: "data step", text: "data work.out; set work.in;", want: audit.ClassSAS},
		{name: "sas path segment", text: "/opt/sas/bin/batch.sh", want: audit.ClassSAS},
		{name: "sas file beats hubcli", text: "hubcli run analysis.sas", want: audit.ClassSAS},
		{name: "slc keyword", text: "SLC batch submit", want: audit.ClassSLC},
		{name: "altair environment", text: "Altair SLC 2024.1", want: audit.ClassSLC},
		{name: "wps engine", text: "wps -b model.wps", want: audit.ClassSLC},
		{name: "hubcli command", text: "hubcli submit --workspace 42", want: audit.ClassSLC},
		{name: "python command", text: "python train.py", want: audit.ClassUnknown},
		{name: "sas inside word", text: "disaster recovery drill", want: audit.ClassUnknown},
		{name: "empty", text: "", want: audit.ClassUnknown},
		{name: "whitespace only", text: " \t ", want: audit.ClassUnknown},
		{name: "sentinel text", text: "Unknown", want: audit.ClassUnknown},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := Classify(tc.text); got != tc.want {
				t.Fatalf("Classify(%q) = %q, want %q", tc.text, got, tc.want)
			}
			// 纯函数，重复分类必须得到同一结果。
			if again := Classify(tc.text); again != tc.want {
				t.Fatalf("Classify(%q) second call = %q, want %q", tc.text, again, tc.want)
			}
		})
	}
}

// TestInfer 验证候选优先级：命令优先于环境名，环境名优先于目标名。
func TestInfer(t *testing.T) {
	cases := []struct {
		name        string
		command     string
		environment string
		target      string
		want        audit.UsageClass
	}{
		{name: "command wins over environment", command: "proc sort", environment: "python-env", target: "anything", want: audit.ClassSAS},
		{name: "environment fallback", command: "", environment: "Altair SLC 2024", target: "", want: audit.ClassSLC},
		{name: "target fallback", command: "Unknown", environment: "Unknown", target: "sas-nightly-job", want: audit.ClassSAS},
		{name: "all empty", command: "", environment: "", target: "", want: audit.ClassUnknown},
		{name: "all sentinel", command: "Unknown", environment: "Unknown", target: "Unknown", want: audit.ClassUnknown},
		{name: "plain workloads stay unknown", command: "python train.py", environment: "Standard Py3.10", target: "train", want: audit.ClassUnknown},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := Infer(tc.command, tc.environment, tc.target); got != tc.want {
				t.Fatalf("Infer(%q, %q, %q) = %q, want %q", tc.command, tc.environment, tc.target, got, tc.want)
			}
		})
	}
}
