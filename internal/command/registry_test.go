package command_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/plus-control/plusd/internal/command"
)

func TestRegistry_Defaults(t *testing.T) {
	r := command.NewRegistry()
	require.NoError(t, command.RegisterDefaults(r))

	assert.Equal(t, []string{
		"ExamData",
		"Get",
		"GetImage",
		"RegistrationData",
		"RequestDeviceIds",
		"SendText",
		"Version",
	}, r.Names())
	assert.Equal(t, "Get: Send command to the device.", r.Description("get"))
	assert.Contains(t, r.Description("RegistrationData"), "registration data")
	assert.Empty(t, r.Description("Nope"))
}

func TestRegistry_InstantiateIgnoresCase(t *testing.T) {
	r := command.NewRegistry()
	require.NoError(t, command.RegisterDefaults(r))

	cmd, err := r.Instantiate("sendTEXT", `<command Text="hi" />`)
	require.NoError(t, err)
	send, ok := cmd.(*command.SendTextCommand)
	require.True(t, ok)
	assert.Equal(t, "SendText", send.Name)
	assert.Equal(t, "hi", send.Text)

	cmd, err = r.Instantiate("getdeviceparameters", `<Command />`)
	require.NoError(t, err)
	assert.IsType(t, &command.GetCommand{}, cmd)
}

func TestRegistry_InstantiateErrors(t *testing.T) {
	r := command.NewRegistry()
	require.NoError(t, command.RegisterDefaults(r))

	_, err := r.Instantiate("Nope", `<Command />`)
	assert.ErrorIs(t, err, command.ErrUnknownCommand)

	_, err = r.Instantiate("Get", `not xml`)
	assert.ErrorIs(t, err, command.ErrMalformedCommand)

	_, err = r.Instantiate("Get", `<Reply />`)
	assert.ErrorIs(t, err, command.ErrMalformedCommand)

	_, err = r.Instantiate("Get", `<Command/><Extra/>`)
	assert.ErrorIs(t, err, command.ErrMalformedCommand)
}

func TestRegistry_InstancesAreIndependent(t *testing.T) {
	r := command.NewRegistry()
	require.NoError(t, command.RegisterDefaults(r))

	a, err := r.Instantiate("SendText", `<Command Text="a" />`)
	require.NoError(t, err)
	b, err := r.Instantiate("SendText", `<Command Text="b" />`)
	require.NoError(t, err)

	assert.Equal(t, "a", a.(*command.SendTextCommand).Text)
	assert.Equal(t, "b", b.(*command.SendTextCommand).Text)
}

func TestRegistry_LastRegistrationWins(t *testing.T) {
	log := &orderLog{}
	r := command.NewRegistry()
	require.NoError(t, command.RegisterDefaults(r))
	require.NoError(t, r.Register(&recordCommand{name: "version", log: log}))

	cmd, err := r.Instantiate("Version", `<Command />`)
	require.NoError(t, err)
	assert.IsType(t, &recordCommand{}, cmd)
	assert.Contains(t, r.Names(), "version")
	assert.NotContains(t, r.Names(), "Version")
}

func TestRegistry_RegisterErrors(t *testing.T) {
	r := command.NewRegistry()
	assert.Error(t, r.Register(nil))
	assert.Error(t, r.Register(&recordCommand{name: ""}))
}

// multiNameCommand answers to several names.
type multiNameCommand struct {
	recordCommand
	names []string
}

func (c *multiNameCommand) Names() []string { return c.names }

func TestRegistry_RejectedRegistrationStoresNothing(t *testing.T) {
	r := command.NewRegistry()
	err := r.Register(&multiNameCommand{names: []string{"Good", "Other", ""}})
	require.Error(t, err)
	assert.Empty(t, r.Names())

	_, err = r.Instantiate("Good", `<Command />`)
	assert.ErrorIs(t, err, command.ErrUnknownCommand)

	require.NoError(t, r.Register(&multiNameCommand{names: []string{"Good", "Other"}}))
	assert.Equal(t, []string{"Good", "Other"}, r.Names())
}

func TestCommandReplyXML(t *testing.T) {
	assert.Equal(t, `<CommandReply Status="SUCCESS" Message="done" />`,
		command.CommandReplyXML(command.StatusSuccess, "done"))
	assert.Equal(t, `<CommandReply Status="FAIL" Message="a&lt;b &amp; &quot;c&quot;" />`,
		command.CommandReplyXML(command.StatusFail, `a<b & "c"`))
}
