package compiler

import (
	"fmt"

	stepfunctions "github.com/marcelohirota/serverless-step-functions"
	"github.com/marcelohirota/serverless-step-functions/internal/config"
	"github.com/marcelohirota/serverless-step-functions/internal/naming"
	"github.com/marcelohirota/serverless-step-functions/intrinsics"
)

// alarmMetricNames maps the declarative metric keys to the CloudWatch
// metric names of the AWS/States namespace.
var alarmMetricNames = map[string]string{
	"executionsFailed":   "ExecutionsFailed",
	"executionsTimedOut": "ExecutionsTimedOut",
	"executionsAborted":  "ExecutionsAborted",
	"executionThrottled": "ExecutionThrottled",
}

// compileAlarms emits one alarm per declared metric/threshold pair and, when
// notification targets are configured, a topic plus one subscription per
// target. Machines without alarm config produce nothing.
func (p *Pipeline) compileAlarms() error {
	for _, name := range p.cfg.MachineNames() {
		sm := p.cfg.StateMachines[name]
		if sm.Alarms == nil || len(sm.Alarms.Metrics) == 0 {
			continue
		}

		machineID, err := p.naming.Resolve(name, naming.KindStateMachine, naming.NoIndex)
		if err != nil {
			return err
		}

		var topicID string
		if len(sm.Alarms.Notifications) > 0 {
			topicID, err = p.compileAlarmTopic(sm.Name, sm.Alarms.Notifications)
			if err != nil {
				return err
			}
		}

		for i, metric := range sm.Alarms.Metrics {
			metricName, ok := alarmMetricNames[metric.Metric]
			if !ok {
				return &stepfunctions.DefinitionError{
					Entity: name,
					Detail: fmt.Sprintf("unknown alarm metric %q", metric.Metric),
				}
			}

			alarmID, err := p.naming.Resolve(name, naming.KindAlarm, i)
			if err != nil {
				return err
			}

			period := metric.Period
			if period == 0 {
				period = 300
			}
			evaluationPeriods := metric.EvaluationPeriods
			if evaluationPeriods == 0 {
				evaluationPeriods = 1
			}

			props := map[string]any{
				"AlarmName":          fmt.Sprintf("%s-%s", p.naming.PhysicalName(name), metric.Metric),
				"Namespace":          "AWS/States",
				"MetricName":         metricName,
				"Statistic":          "Sum",
				"Threshold":          metric.Threshold,
				"Period":             period,
				"EvaluationPeriods":  evaluationPeriods,
				"ComparisonOperator": "GreaterThanOrEqualToThreshold",
				"Dimensions": []any{
					map[string]any{
						"Name":  "StateMachineArn",
						"Value": intrinsics.Ref{Name: machineID},
					},
				},
			}
			if sm.Alarms.TreatMissingData != "" {
				props["TreatMissingData"] = sm.Alarms.TreatMissingData
			}
			if topicID != "" {
				props["AlarmActions"] = []any{intrinsics.Ref{Name: topicID}}
			}

			err = p.put(alarmID, stepfunctions.ResourceDef{
				Type:       "AWS::CloudWatch::Alarm",
				Properties: props,
				DependsOn:  []string{machineID},
			})
			if err != nil {
				return err
			}
		}
	}
	return nil
}

// compileAlarmTopic emits the notification topic for a machine's alarms and
// one subscription per declared target.
func (p *Pipeline) compileAlarmTopic(machine string, targets []config.NotificationTarget) (string, error) {
	topicID, err := p.naming.Resolve(machine, naming.KindAlarmTopic, naming.NoIndex)
	if err != nil {
		return "", err
	}
	err = p.put(topicID, stepfunctions.ResourceDef{
		Type: "AWS::SNS::Topic",
		Properties: map[string]any{
			"TopicName": p.naming.PhysicalName(machine) + "-alarms",
		},
	})
	if err != nil {
		return "", err
	}

	for i, target := range targets {
		if target.Protocol == "" || target.Endpoint == "" {
			return "", &stepfunctions.DefinitionError{
				Entity: machine,
				Detail: fmt.Sprintf("alarm notification %d needs protocol and endpoint", i),
			}
		}
		subscriptionID, err := p.naming.Resolve(machine, naming.KindAlarmSubscription, i)
		if err != nil {
			return "", err
		}
		err = p.put(subscriptionID, stepfunctions.ResourceDef{
			Type: "AWS::SNS::Subscription",
			Properties: map[string]any{
				"Protocol": target.Protocol,
				"Endpoint": target.Endpoint,
				"TopicArn": intrinsics.Ref{Name: topicID},
			},
			DependsOn: []string{topicID},
		})
		if err != nil {
			return "", err
		}
	}
	return topicID, nil
}
