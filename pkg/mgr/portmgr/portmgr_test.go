package portmgr

import "testing"

func TestBuildPortCommandsMTUAndAdmin(t *testing.T) {
	cmds, err := buildPortCommands("Ethernet0", map[string]string{
		"mtu":          "9100",
		"admin_status": "up",
	})
	if err != nil {
		t.Fatal(err)
	}
	if len(cmds) != 2 {
		t.Fatalf("cmds = %v, want 2 entries", cmds)
	}
	if cmds[0][len(cmds[0])-1] != "9100" {
		t.Errorf("mtu command = %v", cmds[0])
	}
	if cmds[1][len(cmds[1])-1] != "up" {
		t.Errorf("admin command = %v", cmds[1])
	}
}

func TestBuildPortCommandsAdminDown(t *testing.T) {
	cmds, err := buildPortCommands("Ethernet4", map[string]string{"admin_status": "down"})
	if err != nil {
		t.Fatal(err)
	}
	if len(cmds) != 1 || cmds[0][len(cmds[0])-1] != "down" {
		t.Fatalf("cmds = %v", cmds)
	}
}

func TestBuildPortCommandsInvalidMTU(t *testing.T) {
	_, err := buildPortCommands("Ethernet0", map[string]string{"mtu": "not-a-number"})
	if err == nil {
		t.Fatal("expected error for invalid mtu")
	}
}

func TestBuildPortCommandsNoFields(t *testing.T) {
	cmds, err := buildPortCommands("Ethernet0", map[string]string{})
	if err != nil {
		t.Fatal(err)
	}
	if len(cmds) != 0 {
		t.Fatalf("cmds = %v, want none", cmds)
	}
}
