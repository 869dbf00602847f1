package script

import (
	"strings"
	"testing"
)

func TestBuildWrapsBodyInsideTryBlock(t *testing.T) {
	got := Build("import bpy\nemit({\"ok\": True})")

	if !strings.HasPrefix(got, "\nimport json\n") {
		t.Fatalf("script does not start with the shared prologue:\n%s", got)
	}
	if !strings.Contains(got, "\ntry:\n    import bpy\n    emit({\"ok\": True})\n") {
		t.Fatalf("body was not indented into the try block:\n%s", got)
	}
	if !strings.Contains(got, "except Exception as exc:") {
		t.Fatalf("missing exception trap:\n%s", got)
	}
	if !strings.Contains(got, `emit({"ok": False, "error": str(exc), "traceback": traceback.format_exc()})`) {
		t.Fatalf("exception trap does not emit a failure payload:\n%s", got)
	}
}

func TestBuildLeavesBlankLinesUnindented(t *testing.T) {
	got := Build("a = 1\n\nb = 2")

	if !strings.Contains(got, "    a = 1\n\n    b = 2") {
		t.Fatalf("blank line should stay empty, got:\n%s", got)
	}
	if strings.Contains(got, "    \n") {
		t.Fatalf("blank line picked up trailing indentation:\n%s", got)
	}
}

func TestBuildStripsSurroundingNewlines(t *testing.T) {
	got := Build("\n\nx = 1\n\n")

	if !strings.Contains(got, "try:\n    x = 1\n\nexcept Exception") {
		t.Fatalf("surrounding newlines should be trimmed before wrapping:\n%s", got)
	}
}

func TestResultPrefixMatchesPrologue(t *testing.T) {
	if !strings.Contains(Build("pass"), `RESULT_PREFIX = "`+ResultPrefix+`"`) {
		t.Fatalf("prologue prefix diverged from ResultPrefix")
	}
}
